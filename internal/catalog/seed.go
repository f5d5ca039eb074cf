package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed seed_schema.json
var seedSchemaJSON string

// SeedDocument is the on-disk seed format: the full catalog plus the demo
// users, loaded from YAML.
type SeedDocument struct {
	Topics []SeedTopic `yaml:"topics"`
	Roles  []SeedRole  `yaml:"roles"`
	Users  []SeedUser  `yaml:"users"`
}

// SeedTopic declares a topic with its question bank.
type SeedTopic struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	VideoURL      string         `yaml:"video_url"`
	RequiredScore int            `yaml:"required_score"`
	Questions     []SeedQuestion `yaml:"questions"`
}

// SeedQuestion declares a question with its options.
type SeedQuestion struct {
	Text    string       `yaml:"text"`
	Options []SeedOption `yaml:"options"`
}

// SeedOption declares one selectable answer.
type SeedOption struct {
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// SeedRole declares a role and the topic names assigned to it.
type SeedRole struct {
	Name   string   `yaml:"name"`
	Topics []string `yaml:"topics"`
}

// SeedUser declares a demo user. The password is hashed before storage.
type SeedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// LoadSeed reads and validates a YAML seed document. The document structure
// is checked against an embedded JSON Schema before any typed decoding, so a
// malformed file is rejected with field-level errors instead of a partial
// import.
func LoadSeed(path string) (*SeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed validates and decodes a YAML seed document.
func ParseSeed(data []byte) (*SeedDocument, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(seedSchemaJSON),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("validating seed document: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("invalid seed document: %v", result.Errors())
	}

	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding seed document: %w", err)
	}

	// Role assignments must reference declared topics.
	names := make(map[string]bool, len(doc.Topics))
	for _, t := range doc.Topics {
		names[t.Name] = true
	}
	for _, r := range doc.Roles {
		for _, topic := range r.Topics {
			if !names[topic] {
				return nil, fmt.Errorf("role %q references unknown topic %q", r.Name, topic)
			}
		}
	}
	for _, u := range doc.Users {
		found := false
		for _, r := range doc.Roles {
			if r.Name == u.Role {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("user %q references unknown role %q", u.Email, u.Role)
		}
	}

	return &doc, nil
}

// Seed writes the document into the store. It is a no-op when roles already
// exist, so running it on every startup is safe.
func Seed(ctx context.Context, w Writer, doc *SeedDocument) error {
	seeded, err := w.HasRoles(ctx)
	if err != nil {
		return fmt.Errorf("checking for existing catalog: %w", err)
	}
	if seeded {
		slog.Info("catalog already seeded, skipping")
		return nil
	}

	topicIDs := make(map[string]int64, len(doc.Topics))
	for _, st := range doc.Topics {
		topic, err := w.CreateTopic(ctx, Topic{
			Name:          st.Name,
			Description:   st.Description,
			VideoURL:      st.VideoURL,
			RequiredScore: st.RequiredScore,
		})
		if err != nil {
			return fmt.Errorf("seeding topic %q: %w", st.Name, err)
		}
		topicIDs[st.Name] = topic.ID

		for _, sq := range st.Questions {
			question, err := w.CreateQuestion(ctx, topic.ID, sq.Text)
			if err != nil {
				return fmt.Errorf("seeding question for %q: %w", st.Name, err)
			}
			for _, so := range sq.Options {
				if _, err := w.CreateOption(ctx, question.ID, so.Text, so.Correct); err != nil {
					return fmt.Errorf("seeding option for %q: %w", st.Name, err)
				}
			}
		}
	}

	roleIDs := make(map[string]int64, len(doc.Roles))
	for _, sr := range doc.Roles {
		role, err := w.CreateRole(ctx, sr.Name)
		if err != nil {
			return fmt.Errorf("seeding role %q: %w", sr.Name, err)
		}
		roleIDs[sr.Name] = role.ID

		for _, topicName := range sr.Topics {
			if err := w.AssignTopic(ctx, role.ID, topicIDs[topicName]); err != nil {
				return fmt.Errorf("assigning %q to %q: %w", topicName, sr.Name, err)
			}
		}
	}

	for _, su := range doc.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", su.Email, err)
		}
		if _, err := w.CreateUser(ctx, User{
			RoleID:       roleIDs[su.Role],
			Name:         su.Name,
			Email:        su.Email,
			PasswordHash: string(hash),
		}); err != nil {
			return fmt.Errorf("seeding user %q: %w", su.Email, err)
		}
	}

	slog.Info("catalog seeded",
		"topics", len(doc.Topics),
		"roles", len(doc.Roles),
		"users", len(doc.Users),
	)
	return nil
}
