package mailer

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

var testConfig = Config{
	Host:        "smtp.clinica.example",
	Port:        587,
	FromAddress: "no-reply@clinica.example",
	FromName:    "Tu Clínica",
}

func TestBuild_Multipart(t *testing.T) {
	msg, err := Build(testConfig, Message{
		To:      "ana@example.com",
		ToName:  "Ana",
		Subject: "Tu período podría llegar mañana",
		HTML:    "<p>Hola <b>Ana</b>,</p><p>Prepárate &amp; descansa.</p>",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"multipart/alternative",
		"text/plain",
		"text/html",
		"no-reply@clinica.example",
		"ana@example.com",
		"Message-ID:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in message:\n%s", want, out)
		}
	}
}

func TestBuild_RequiresRecipient(t *testing.T) {
	if _, err := Build(testConfig, Message{Subject: "x", HTML: "y"}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
}

func TestBuild_InvalidFrom(t *testing.T) {
	cfg := testConfig
	cfg.FromAddress = "not an address"
	if _, err := Build(cfg, Message{To: "ana@example.com"}); err == nil {
		t.Error("expected error for invalid from address")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hola</p><p>Mundo</p>", "Hola\nMundo"},
		{"Toma tu píldora<br/>a las 21:00", "Toma tu píldora\na las 21:00"},
		{"<b>5 &amp; 6</b>", "5 & 6"},
		{"<script>alert(1)</script>texto", "texto"},
		{"  sin   etiquetas  ", "sin etiquetas"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSMTP_NotConfigured(t *testing.T) {
	s := NewSMTP(Config{})
	if err := s.Send(context.Background(), Message{To: "a@b.c"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSMTP_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewSMTP(Config{
		Host:        "127.0.0.1",
		Port:        port,
		FromAddress: "no-reply@clinica.example",
		Timeout:     time.Second,
	})
	if err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "x", HTML: "<p>x</p>"}); err == nil {
		t.Error("expected connect failure")
	}
}
