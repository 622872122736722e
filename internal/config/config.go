package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"arcadeops/internal/checklist"
	"arcadeops/internal/inspect"
)

// Config models arcade.yml.
type Config struct {
	Facility struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"facility"`
	Checklist struct {
		Steps []StepConfig `yaml:"steps"`
	} `yaml:"checklist"`
	Inspection struct {
		Area       string             `yaml:"area"`
		UnitType   string             `yaml:"unit_type"`
		Categories []inspect.Category `yaml:"categories"`
	} `yaml:"inspection"`
	Issues struct {
		Areas           []string `yaml:"areas"`
		Priorities      []string `yaml:"priorities"`
		DefaultPriority string   `yaml:"default_priority"`
		Statuses        []string `yaml:"statuses"`
		InitialStatus   string   `yaml:"initial_status"`
	} `yaml:"issues"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// StepConfig is the yaml shape of one checklist step.
type StepConfig struct {
	ID              string       `yaml:"id"`
	Title           string       `yaml:"title"`
	Prompt          string       `yaml:"prompt"`
	Kind            string       `yaml:"kind"`
	ActionLabel     string       `yaml:"action_label"`
	ActionTarget    string       `yaml:"action_target"`
	Persist         string       `yaml:"persist"`
	ConfirmOnFinish bool         `yaml:"confirm_on_finish"`
	Items           []ItemConfig `yaml:"items,omitempty"`
	Figures         []string     `yaml:"figures,omitempty"`
}

// ItemConfig is one entry of a step's sub-list.
type ItemConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with arcade config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Facility.ID == "" {
		return fmt.Errorf("config.facility.id is required")
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("config.checklist: %w", err)
	}
	if _, err := inspect.New(c.InspectSettings()); err != nil {
		return fmt.Errorf("config.inspection: %w", err)
	}
	if len(c.Issues.Statuses) > 0 && c.Issues.InitialStatus != "" && !contains(c.Issues.Statuses, c.Issues.InitialStatus) {
		return fmt.Errorf("config.issues.initial_status %s not in statuses", c.Issues.InitialStatus)
	}
	for i, w := range c.Webhooks {
		if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be http(s)", i)
		}
	}
	return nil
}

// Registry builds the checklist step registry.
func (c *Config) Registry() (*checklist.Registry, error) {
	steps := make([]checklist.Step, 0, len(c.Checklist.Steps))
	for _, s := range c.Checklist.Steps {
		var items []checklist.Item
		for _, it := range s.Items {
			items = append(items, checklist.Item{Name: it.Name, Label: it.Label})
		}
		steps = append(steps, checklist.Step{
			ID:              s.ID,
			Title:           s.Title,
			Prompt:          s.Prompt,
			Kind:            checklist.Kind(s.Kind),
			ActionLabel:     s.ActionLabel,
			ActionTarget:    s.ActionTarget,
			Persist:         checklist.PersistPolicy(s.Persist),
			ConfirmOnFinish: s.ConfirmOnFinish,
			Items:           items,
			Figures:         s.Figures,
		})
	}
	return checklist.NewRegistry(steps)
}

// InspectSettings maps the inspection and issue sections onto inspector settings.
func (c *Config) InspectSettings() inspect.Settings {
	s := inspect.DefaultSettings()
	if len(c.Inspection.Categories) > 0 {
		s.Categories = c.Inspection.Categories
	}
	if c.Inspection.Area != "" {
		s.Area = c.Inspection.Area
	}
	if c.Inspection.UnitType != "" {
		s.UnitType = c.Inspection.UnitType
	}
	if len(c.Issues.Priorities) > 0 {
		s.Priorities = c.Issues.Priorities
	}
	if c.Issues.DefaultPriority != "" {
		s.DefaultPriority = c.Issues.DefaultPriority
	}
	if c.Issues.InitialStatus != "" {
		s.InitialStatus = c.Issues.InitialStatus
	}
	return s
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "arcade.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(facilityID string) string {
	return fmt.Sprintf(defaultTemplate, facilityID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a facility. The template is
// decoded with a fixed id, so a decode failure is a bug in the template.
func Default(facilityID string) *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("default"))).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("config: default template: %v", err))
	}
	cfg.Facility.ID = facilityID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to yaml.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

const defaultTemplate = `facility:
  id: %q
  name: "Main Street FEC"

checklist:
  steps:
    - id: walkthrough
      title: Walk-through
      prompt: "Walk the building. Anything out of place since close?"
      persist: on_issue
    - id: tpt_goals
      title: TPT Goals
      prompt: "Print today's TPT sheet and post it at the prize counter."
      kind: action
      action_label: Print TPT Sheet
      action_target: /settings/tpt
      figures: [games_out_of_range, daily_tpt, weekly_average_tpt]
    - id: game_status
      title: Game Status
      prompt: "Are all games powered on and out of error?"
    - id: breakers
      title: Breakers
      prompt: "All breakers on and panel doors closed?"
      persist: on_issue
    - id: safety_security
      title: Safety & Security
      prompt: "Check each item; add notes for anything found."
      items:
        - {name: "Alarms & Locks", label: "Verify alarms and locks are secure."}
        - {name: "Lighting", label: "Inspect all lighting for dark spots or issues."}
        - {name: "Carpets & Tiles", label: "Inspect carpets and tiles for tears or broken areas."}
        - {name: "Tables & Chairs", label: "Check all tables and chairs for stability and missing hardware."}
    - id: emergency_lighting
      title: Emergency Lighting
      prompt: "Exit signs and emergency lights lit?"
      persist: on_issue
    - id: dance_floor
      title: Dance Floor
      prompt: "Dance floor clean, lit and free of hazards?"
    - id: suit_inspection
      title: Suit Inspection
      prompt: "Mascot suit clean and undamaged?"
      persist: on_issue
      items:
        - {name: "Tears & Rips", label: "No tears, rips or loose seams."}
        - {name: "Components", label: "Head, hands and feet present and working."}
    - id: cleaning_resources
      title: Cleaning Resources
      prompt: "Cleaning carts stocked (spray, towels, gloves) and vacuums working?"
      persist: on_issue
    - id: bathrooms
      title: Bathrooms
      prompt: "Check each item; add notes for anything found."
      persist: on_issue
      items:
        - {name: "Toilet Battery", label: "Check toilet battery status."}
        - {name: "Sinks", label: "Inspect sinks for issues."}
        - {name: "Paint", label: "Check for paint chips or damage."}
        - {name: "Locks", label: "Verify locks are working correctly."}
        - {name: "Hardware", label: "Inspect hardware is secure (e.g., toilet paper holders)."}
    - id: menu_boards
      title: Menu Boards
      prompt: "Menu boards on and showing today's menu?"
    - id: kiosks
      title: Kiosks
      prompt: "Card kiosks powered, stocked and taking payment?"
    - id: thank_you_boxes
      title: Thank-you Boxes
      prompt: "Thank-you boxes stocked at the exits?"
      persist: on_issue
    - id: kitchen
      title: Kitchen
      prompt: "Kitchen equipment on and temperatures logged?"
    - id: adventure_zone
      title: Adventure Zone
      prompt: "Play structure netting, padding and slides checked?"
    - id: game_room
      title: Game Room
      prompt: "Game room floor walked; inspect any game that looks off."
      kind: action
      action_label: Inspect a Game
      action_target: arcade inspect
    - id: final_check
      title: Final Check
      prompt: "Ready to open. Press Finish to submit the checklist."
      confirm_on_finish: true

inspection:
  area: Game Room
  unit_type: game
  categories:
    - {name: Safety, help: "Check sharp edges, loose glass, cords."}
    - {name: Power/Boot, help: "Does it power on? Any boot errors?"}
    - {name: Reader, help: "Tap card. Do credits add?"}
    - {name: Controls, help: "Start a game. Test buttons/joystick/guns/wheel."}
    - {name: Sound, help: "Audio plays, correct level, no crackle?"}
    - {name: Screen/Display, help: "Picture, colors, brightness, no dead pixels?"}
    - {name: Lights, help: "Marquee/cabinet/playfield in attract and play?"}
    - {name: Tickets, help: "If ticket game: payout/card credit OK?"}
    - {name: Appearance/Hardware, help: "Glass, decals, screws, leveling, dust."}

issues:
  areas: [Game Room, Party Room, Bathroom, Prize Counter, Entry / Lobby, Kitchen, POS / Registers, HVAC / Mechanical, Storage, Ceiling, Walls & Paint, Lighting, Carpets / Floors, Office]
  priorities: [Low, Medium, High]
  default_priority: Medium
  statuses: [Open, In Progress, Awaiting Parts, Blocked, Closed, Archived]
  initial_status: Open

webhooks: []
`
