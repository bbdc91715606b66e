package storage

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

// Seed is the initial content of a MemoryRepository
type Seed struct {
	Challenges []*models.Challenge
	Clients    []*models.ApiClient
}

// seedFile is the YAML layout of a seed file
type seedFile struct {
	Challenges []seedChallenge     `yaml:"challenges"`
	Clients    []*models.ApiClient `yaml:"api_clients"`
}

type seedChallenge struct {
	models.CreateChallengeRequest `yaml:",inline"`

	ID int64 `yaml:"id"`

	// Relative offsets from load time, e.g. "-72h". Used when the absolute
	// timestamps are not set.
	StartsIn string `yaml:"starts_in"`
	EndsIn   string `yaml:"ends_in"`

	Completed    bool              `yaml:"completed"`
	Participants []seedParticipant `yaml:"participants"`
}

type seedParticipant struct {
	WalletAddress string  `yaml:"wallet_address"`
	AmountUSD     float64 `yaml:"amount_usd"`
	TxHash        string  `yaml:"tx_hash"`
}

// LoadSeedFile reads a YAML seed file. Relative times resolve against now.
func LoadSeedFile(path string, now time.Time) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seed := &Seed{Clients: f.Clients}
	seen := make(map[int64]bool)

	for i, sc := range f.Challenges {
		c, err := sc.toChallenge(now)
		if err != nil {
			return nil, fmt.Errorf("challenge #%d (%q): %w", i+1, sc.Name, err)
		}
		if c.ID == 0 {
			c.ID = int64(i + 1)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("challenge #%d: duplicate id %d", i+1, c.ID)
		}
		seen[c.ID] = true
		seed.Challenges = append(seed.Challenges, c)
	}

	for _, client := range seed.Clients {
		if client.ApiKey == "" {
			return nil, fmt.Errorf("api client %q: api_key is required", client.Name)
		}
		client.CreatedAt = now
	}

	slog.Info("seed loaded", "file", path, "challenges", len(seed.Challenges), "clients", len(seed.Clients))
	return seed, nil
}

func (sc seedChallenge) toChallenge(now time.Time) (*models.Challenge, error) {
	if sc.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	start, err := resolveTime(sc.StartTime, sc.StartsIn, now)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := resolveTime(sc.EndTime, sc.EndsIn, now)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}

	serviceType := sc.ServiceType
	if serviceType == "" {
		serviceType = models.ServiceCustom
	}
	if !serviceType.Valid() {
		return nil, fmt.Errorf("unknown service_type %q", serviceType)
	}

	c := &models.Challenge{
		ID:            sc.ID,
		Name:          sc.Name,
		Description:   sc.Description,
		Goal:          sc.Goal,
		StartTime:     start,
		EndTime:       end,
		ServiceType:   serviceType,
		ActivityType:  sc.ActivityType,
		APIProvider:   sc.APIProvider,
		IsCharity:     sc.IsCharity,
		CharityWallet: sc.CharityWallet,
		Completed:     sc.Completed,
		Participants:  []models.Participant{},
		CreatedAt:     now,
	}

	for _, p := range sc.Participants {
		if ledger.IsParticipating(c, p.WalletAddress) {
			return nil, fmt.Errorf("duplicate participant %s", p.WalletAddress)
		}
		c.Participants = append(c.Participants, models.Participant{
			WalletAddress: ledger.NormalizeAddress(p.WalletAddress),
			AmountUSD:     p.AmountUSD,
			TxHash:        p.TxHash,
			JoinedAt:      start,
		})
	}

	return c, nil
}

func resolveTime(abs time.Time, rel string, now time.Time) (time.Time, error) {
	if !abs.IsZero() {
		return abs.UTC(), nil
	}
	if rel == "" {
		return time.Time{}, fmt.Errorf("either an absolute time or a relative offset is required")
	}
	d, err := time.ParseDuration(rel)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d).UTC(), nil
}

// DefaultSeed returns the built-in development challenges, positioned around now
func DefaultSeed(now time.Time) *Seed {
	now = now.UTC()
	day := 24 * time.Hour

	return &Seed{
		Challenges: []*models.Challenge{
			{
				ID:           1,
				Name:         "30-Day Commit Streak",
				Description:  "Push at least one commit every day for a month.",
				Goal:         "1",
				StartTime:    now.Add(-5 * day),
				EndTime:      now.Add(25 * day),
				ServiceType:  models.ServiceGitHub,
				ActivityType: models.ActivityCommits,
				APIProvider:  models.ProviderGitHub,
				Participants: []models.Participant{
					{WalletAddress: "0x8ba1f109551bd432803012645ac136ddd64dba72", AmountUSD: 0.05, JoinedAt: now.Add(-5 * day)},
					{WalletAddress: "0x71c7656ec7ab88b098defb751b7401b5f6d8976f", AmountUSD: 0.1, JoinedAt: now.Add(-4 * day)},
				},
				CreatedAt: now.Add(-6 * day),
			},
			{
				ID:           2,
				Name:         "Morning 5K",
				Description:  "Run five kilometres every morning for two weeks.",
				Goal:         "5 km",
				StartTime:    now.Add(2 * day),
				EndTime:      now.Add(16 * day),
				ServiceType:  models.ServiceStrava,
				ActivityType: models.ActivityRun,
				APIProvider:  models.ProviderStrava,
				Participants: []models.Participant{},
				CreatedAt:    now.Add(-day),
			},
			{
				ID:           3,
				Name:         "Weekend Century Ride",
				Description:  "Ride 100 km over the weekend.",
				Goal:         "100 km",
				StartTime:    now.Add(-4 * day),
				EndTime:      now.Add(-2 * day),
				ServiceType:  models.ServiceStrava,
				ActivityType: models.ActivityRide,
				APIProvider:  models.ProviderStrava,
				Participants: []models.Participant{
					{WalletAddress: "0x71c7656ec7ab88b098defb751b7401b5f6d8976f", AmountUSD: 0.2, JoinedAt: now.Add(-5 * day)},
				},
				CreatedAt: now.Add(-7 * day),
			},
			{
				ID:            4,
				Name:          "Open Source Sprint for Charity",
				Description:   "Open two pull requests a day. Failed stakes go to charity.",
				Goal:          "2",
				StartTime:     now.Add(-day),
				EndTime:       now.Add(6 * day),
				ServiceType:   models.ServiceGitHub,
				ActivityType:  models.ActivityPullRequests,
				APIProvider:   models.ProviderGitHub,
				IsCharity:     true,
				CharityWallet: "0x00000000219ab540356cbb839cbe05303d7705fa",
				Participants:  []models.Participant{},
				CreatedAt:     now.Add(-2 * day),
			},
		},
	}
}
