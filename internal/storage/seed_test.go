package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/terra-clan/motify-engine/internal/models"
)

var seedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}
	return path
}

func TestLoadSeedFileFromRepo(t *testing.T) {
	path := filepath.Join("..", "..", "seeds", "dev.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("seeds directory not found, skipping")
	}

	seed, err := LoadSeedFile(path, seedNow)
	if err != nil {
		t.Fatalf("LoadSeedFile failed: %v", err)
	}

	if len(seed.Challenges) != 4 {
		t.Errorf("expected 4 challenges, got %d", len(seed.Challenges))
	}
	if len(seed.Clients) < 2 {
		t.Errorf("expected at least 2 api clients, got %d", len(seed.Clients))
	}

	streak := seed.Challenges[0]
	if streak.ServiceType != models.ServiceGitHub {
		t.Errorf("expected service_type github, got %s", streak.ServiceType)
	}
	if got := streak.Participants[0].WalletAddress; got != "0x8ba1f109551bd432803012645ac136ddd64dba72" {
		t.Errorf("expected normalized wallet, got %s", got)
	}
	if !streak.StartTime.Equal(seedNow.Add(-120 * time.Hour)) {
		t.Errorf("unexpected start time %v", streak.StartTime)
	}
}

func TestLoadSeedFileRelativeTimes(t *testing.T) {
	path := writeSeed(t, `
challenges:
  - name: Step Up
    goal: "10000"
    starts_in: 24h
    ends_in: 72h
    service_type: strava
    activity_type: walk
api_clients:
  - name: ci
    api_key: ci-key
    is_active: true
    permissions: ["challenges:read"]
`)

	seed, err := LoadSeedFile(path, seedNow)
	if err != nil {
		t.Fatalf("LoadSeedFile failed: %v", err)
	}

	c := seed.Challenges[0]
	if c.ID != 1 {
		t.Errorf("expected positional id 1, got %d", c.ID)
	}
	if !c.StartTime.Equal(seedNow.Add(24 * time.Hour)) {
		t.Errorf("unexpected start %v", c.StartTime)
	}
	if !c.EndTime.Equal(seedNow.Add(72 * time.Hour)) {
		t.Errorf("unexpected end %v", c.EndTime)
	}
	if c.ActivityType != models.ActivityWalk {
		t.Errorf("expected activity walk, got %s", c.ActivityType)
	}
	if len(c.Participants) != 0 {
		t.Errorf("expected no participants, got %d", len(c.Participants))
	}

	client := seed.Clients[0]
	if !client.HasPermission("challenges:read") {
		t.Error("expected client to have challenges:read")
	}
}

func TestLoadSeedFileDefaultsServiceType(t *testing.T) {
	path := writeSeed(t, `
challenges:
  - name: Read a book
    starts_in: -1h
    ends_in: 1h
`)

	seed, err := LoadSeedFile(path, seedNow)
	if err != nil {
		t.Fatalf("LoadSeedFile failed: %v", err)
	}
	if seed.Challenges[0].ServiceType != models.ServiceCustom {
		t.Errorf("expected custom service type, got %s", seed.Challenges[0].ServiceType)
	}
}

func TestLoadSeedFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "challenges:\n  - starts_in: 1h\n    ends_in: 2h\n"},
		{"end before start", "challenges:\n  - name: x\n    starts_in: 2h\n    ends_in: 1h\n"},
		{"missing window", "challenges:\n  - name: x\n"},
		{"bad duration", "challenges:\n  - name: x\n    starts_in: soon\n    ends_in: 1h\n"},
		{"unknown service", "challenges:\n  - name: x\n    starts_in: 1h\n    ends_in: 2h\n    service_type: fitbit\n"},
		{"duplicate id", "challenges:\n  - {id: 3, name: a, starts_in: 1h, ends_in: 2h}\n  - {id: 3, name: b, starts_in: 1h, ends_in: 2h}\n"},
		{"duplicate participant", "challenges:\n  - name: x\n    starts_in: -1h\n    ends_in: 2h\n    participants:\n      - {wallet_address: '0xAB', amount_usd: 1}\n      - {wallet_address: '0xab', amount_usd: 2}\n"},
		{"client without key", "api_clients:\n  - name: nobody\n"},
		{"invalid yaml", "challenges: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSeedFile(writeSeed(t, tt.content), seedNow); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadSeedFileMissing(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.yaml"), seedNow); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultSeedPhases(t *testing.T) {
	seed := DefaultSeed(seedNow)
	if len(seed.Challenges) != 4 {
		t.Fatalf("expected 4 challenges, got %d", len(seed.Challenges))
	}

	ended := seed.Challenges[2]
	if !ended.EndTime.Before(seedNow) {
		t.Error("expected the third challenge to have ended")
	}
	if ended.Completed {
		t.Error("ended challenge should await finalization, not be completed")
	}

	upcoming := seed.Challenges[1]
	if !upcoming.StartTime.After(seedNow) {
		t.Error("expected the second challenge to be upcoming")
	}
}
