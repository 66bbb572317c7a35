package config

import "testing"

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {
	    "urls": ["stun:stun.example.com:3478"]
	  },
	  {
	    "urls": ["turn:turn.example.com:3478?transport=udp"],
	    "username": "user",
	    "credential": "pass"
	  }
	]`

	servers, err := parseICEServersJSON(raw, false)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if got := servers[1].Username; got != "user" {
		t.Fatalf("unexpected username: %q", got)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("unexpected credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_SupportsSingleStringURLs(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersJSON(`[{"urls": "stun:stun.example.com:3478"}]`, false)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected urls: %#v", got)
	}
}

func TestParseICEServersJSON_RejectsTURNWithoutCreds(t *testing.T) {
	t.Parallel()

	if _, err := parseICEServersJSON(`[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`, false); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseICEServersJSON_AllowsTURNWithoutCredsForTURNREST(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersJSON(`[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`, true)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("expected TURN server creds to be empty: %#v", servers[0])
	}
}

func TestParseICEServersJSON_RejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	if _, err := parseICEServersJSON(`[{"urls": ["https://example.com"]}]`, false); err == nil {
		t.Fatal("expected error for non-ICE url scheme")
	}
}

func TestParseICEServersSplit(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersSplit(
		"stun:stun.example.com:3478, stun:stun2.example.com:3478",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
		false,
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("expected both stun urls, got %#v", servers[0].URLs)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server should not have creds: %#v", servers[0])
	}
	if servers[1].Username != "user" {
		t.Fatalf("unexpected turn username: %q", servers[1].Username)
	}
	if servers[1].Credential.(string) != "pass" {
		t.Fatalf("unexpected turn credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersSplit_RejectsTURNWithoutCreds(t *testing.T) {
	t.Parallel()

	if _, err := parseICEServersSplit("", "turn:turn.example.com:3478", "", "", false); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseICEServers_PrefersJSONForm(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServers(
		`[{"urls": "stun:json.example.com:3478"}]`,
		"stun:split.example.com:3478",
		"", "", "",
		false,
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com:3478" {
		t.Fatalf("expected the JSON form to win: %#v", servers)
	}
}
