package config

import (
	"testing"
)

func TestParseICEServersJSON_SingleAndList(t *testing.T) {
	servers, err := ParseICEServersJSON(`[
		{"urls": "stun:stun.l.google.com:19302"},
		{"urls": ["turn:turn.example.com:3478"], "username": "u", "credential": "c"}
	]`)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("servers[0]=%+v", servers[0])
	}
	if servers[1].Username != "u" {
		t.Fatalf("servers[1].Username=%q", servers[1].Username)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "c" {
		t.Fatalf("servers[1].Credential=%v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_RejectsTurnWithoutCredentials(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478"}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseICEServersJSON_RejectsUnsupportedScheme(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls": "https://example.com"}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseICEServersJSON_RejectsInvalidJSON(t *testing.T) {
	_, err := ParseICEServersJSON(`{"urls": "stun:x"}`)
	if err == nil {
		t.Fatalf("expected error for non-array JSON, got nil")
	}
}

func TestConvenienceEnv_StunOnly(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv("stun:a.example.com, stun:b.example.com", "", "", "")
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("len=%d, want 1", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("URLs=%v, want 2 entries", servers[0].URLs)
	}
}

func TestConvenienceEnv_TurnRequiresUsernameAndCredential(t *testing.T) {
	_, err := ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "u", "")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	_, err = ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "", "c")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestConvenienceEnv_StunAndTurn(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv("stun:stun.example.com", "turn:turn.example.com:3478", "u", "c")
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if servers[1].Username != "u" {
		t.Fatalf("servers[1].Username=%q", servers[1].Username)
	}
}

func TestConvenienceEnv_Empty(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv("", "", "", "")
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers, got %v", servers)
	}
}
