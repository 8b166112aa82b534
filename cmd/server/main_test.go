package main

import (
	"testing"

	"rinkdesk/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	weak := []string{"123456", "654321", "000000", "888888", "121212", "12a456"}
	for _, pin := range weak {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected %q to be rejected", pin)
		}
	}
	if err := validatePINStrength("739154"); err != nil {
		t.Fatalf("expected 739154 to pass, got %v", err)
	}
}
