package providers

import (
	"strings"
	"testing"
)

func TestAugmentProviderError_ScopeHint(t *testing.T) {
	msg := augmentProviderError("You have insufficient permissions for this operation. Missing scopes: model.request.")
	if !strings.Contains(msg, "model.request access") {
		t.Fatalf("expected scope guidance in hint, got %q", msg)
	}
}

func TestAugmentProviderError_IncorrectAPIKeyHint(t *testing.T) {
	msg := augmentProviderError("Incorrect API key provided")
	if !strings.Contains(msg, "Platform API key") {
		t.Fatalf("expected platform key hint, got %q", msg)
	}
}

func TestAugmentProviderError_UnknownModelHint(t *testing.T) {
	msg := augmentProviderError("The model `gpt-9` does not exist or you do not have access to it.")
	if !strings.Contains(msg, "chatgpt models") {
		t.Fatalf("expected models command hint, got %q", msg)
	}
}

func TestAugmentProviderError_PassThrough(t *testing.T) {
	if got := augmentProviderError("  boom  "); got != "boom" {
		t.Fatalf("expected trimmed message, got %q", got)
	}
}
