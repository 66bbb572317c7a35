package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// parseICEServers resolves the ICE server list from either the JSON form or
// the convenience STUN/TURN env vars, preferring the JSON form when both are
// set.
//
// allowMissingTURNCreds relaxes the credential requirement on TURN urls; it is
// set when TURN REST is enabled, because ephemeral credentials are injected
// into the list per request.
func parseICEServers(rawJSON, stunURLs, turnURLs, turnUsername, turnCredential string, allowMissingTURNCreds bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(rawJSON); raw != "" {
		servers, err := parseICEServersJSON(raw, allowMissingTURNCreds)
		if err != nil {
			return nil, fmt.Errorf("%s_ICE_SERVERS_JSON: %w", envPrefix, err)
		}
		return servers, nil
	}
	return parseICEServersSplit(stunURLs, turnURLs, turnUsername, turnCredential, allowMissingTURNCreds)
}

func parseICEServersJSON(raw string, allowMissingTURNCreds bool) ([]webrtc.ICEServer, error) {
	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		urls := make([]string, 0, len(server.URLs))
		for _, url := range server.URLs {
			if url = strings.TrimSpace(url); url != "" {
				urls = append(urls, url)
			}
		}

		iceServer := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(server.Username),
		}
		if cred := strings.TrimSpace(server.Credential); cred != "" {
			iceServer.Credential = server.Credential
		}

		if err := validateICEServer(iceServer, allowMissingTURNCreds); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, iceServer)
	}
	return out, nil
}

func parseICEServersSplit(stunURLs, turnURLs, turnUsername, turnCredential string, allowMissingTURNCreds bool) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if stunList := splitCommaSeparated(stunURLs); len(stunList) > 0 {
		server := webrtc.ICEServer{URLs: stunList}
		if err := validateICEServer(server, allowMissingTURNCreds); err != nil {
			return nil, fmt.Errorf("%s_STUN_URLS: %w", envPrefix, err)
		}
		servers = append(servers, server)
	}

	if turnList := splitCommaSeparated(turnURLs); len(turnList) > 0 {
		server := webrtc.ICEServer{
			URLs:     turnList,
			Username: strings.TrimSpace(turnUsername),
		}
		if cred := strings.TrimSpace(turnCredential); cred != "" {
			server.Credential = cred
		}
		if err := validateICEServer(server, allowMissingTURNCreds); err != nil {
			return nil, fmt.Errorf("%s_TURN_URLS: %w", envPrefix, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateICEServer(server webrtc.ICEServer, allowMissingTURNCreds bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	hasTURN := false
	for _, url := range server.URLs {
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			hasTURN = true
		}
	}

	if hasTURN && !allowMissingTURNCreds {
		if strings.TrimSpace(server.Username) == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}

	return nil
}

func isAllowedICEScheme(url string) bool {
	switch {
	case strings.HasPrefix(url, "stun:"),
		strings.HasPrefix(url, "stuns:"),
		strings.HasPrefix(url, "turn:"),
		strings.HasPrefix(url, "turns:"):
		return true
	default:
		return false
	}
}
