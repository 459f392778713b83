package classifier

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// DegradedText is the canned analysis text for one failure class.
type DegradedText struct {
	Summary  string   `yaml:"summary"`
	FixSteps []string `yaml:"fix_steps"`
}

// Profile holds the prompt wording and canned replies.
type Profile struct {
	Organization        string `yaml:"organization"`
	Greeting            string `yaml:"greeting"`
	SignOff             string `yaml:"sign_off"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
	SystemPrompt        string `yaml:"system_prompt"`
	UserPrompt          string `yaml:"user_prompt"`
	HoldingReply        string `yaml:"holding_reply"`
	Degraded            struct {
		Unconfigured DegradedText `yaml:"unconfigured"`
		Failed       DegradedText `yaml:"failed"`
	} `yaml:"degraded"`

	system  *template.Template
	user    *template.Template
	holding *template.Template
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() (*Profile, error) {
	return parseProfile(nil)
}

// LoadProfile reads a YAML override from path on top of the embedded
// profile. An empty path yields the default.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier profile: %w", err)
	}
	return parseProfile(data)
}

func parseProfile(override []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(defaultProfileYAML, &p); err != nil {
		return nil, fmt.Errorf("parse default profile: %w", err)
	}
	if len(override) > 0 {
		if err := yaml.Unmarshal(override, &p); err != nil {
			return nil, fmt.Errorf("parse classifier profile: %w", err)
		}
	}

	var err error
	if p.system, err = template.New("system").Parse(p.SystemPrompt); err != nil {
		return nil, fmt.Errorf("system_prompt: %w", err)
	}
	if p.user, err = template.New("user").Parse(p.UserPrompt); err != nil {
		return nil, fmt.Errorf("user_prompt: %w", err)
	}
	if p.holding, err = template.New("holding").Parse(p.HoldingReply); err != nil {
		return nil, fmt.Errorf("holding_reply: %w", err)
	}
	return &p, nil
}

type promptData struct {
	Organization string
	Greeting     string
	SignOff      string
	TicketID     string
	Sender       string
	Subject      string
	Body         string
	ReceivedAt   string
}

func (p *Profile) data(req Request) promptData {
	return promptData{
		Organization: p.Organization,
		Greeting:     p.Greeting,
		SignOff:      p.SignOff,
		TicketID:     req.TicketID,
		Sender:       req.Sender,
		Subject:      req.Subject,
		Body:         req.Body,
		ReceivedAt:   req.ReceivedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
}

func (p *Profile) render(tmpl *template.Template, req Request) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p.data(req)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// Prompts renders the system and user messages for req.
func (p *Profile) Prompts(req Request) (system, user string, err error) {
	if system, err = p.render(p.system, req); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if user, err = p.render(p.user, req); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return system, user, nil
}

// HoldingReplyFor renders the canned reply used by degraded results.
func (p *Profile) HoldingReplyFor(req Request) string {
	reply, err := p.render(p.holding, req)
	if err != nil || reply == "" {
		return fmt.Sprintf("%s\n\nYour message has been received and will be reviewed shortly.\n\n%s", p.Greeting, p.SignOff)
	}
	return reply
}
