package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Phrases are the fixed English replies the router sends. They are
// translated to the turn's language before delivery. Placeholders are
// written as {name}.
type Phrases struct {
	Thinking         string `yaml:"thinking"`
	SettingReminder  string `yaml:"setting_reminder"`
	NoReminders      string `yaml:"no_reminders"`
	ReminderItem     string `yaml:"reminder_item"` // {index} {task} {time}
	ReminderSet      string `yaml:"reminder_set"`  // {task} {time}
	ReminderDue      string `yaml:"reminder_due"`  // {task}
	GenerationFailed string `yaml:"generation_failed"`
	SomethingWrong   string `yaml:"something_wrong"`
	TimeLayout       string `yaml:"time_layout"` // Go time layout for reminder times
}

func DefaultPhrases() Phrases {
	return Phrases{
		Thinking:         "Thinking...",
		SettingReminder:  "Setting Reminder for you...",
		NoReminders:      "You have no reminders set.",
		ReminderItem:     "{index}. {task} at {time}",
		ReminderSet:      "Reminder set for {task} at {time}",
		ReminderDue:      "⏰ Reminder: {task}",
		GenerationFailed: "Sorry, I couldn't prepare an answer right now. Please try again in a little while.",
		SomethingWrong:   "Sorry, something went wrong on our side. Please try again later.",
		TimeLayout:       "Jan 2, 3:04 PM",
	}
}

// LoadPhrases overlays the YAML file at path onto the defaults. Keys missing
// from the file keep their default text. An empty path returns the defaults.
func LoadPhrases(path string) (Phrases, error) {
	p := DefaultPhrases()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read phrases: %w", err)
	}
	var overlay Phrases
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return p, fmt.Errorf("parse phrases %s: %w", path, err)
	}
	p.merge(overlay)
	return p, nil
}

func (p *Phrases) merge(o Phrases) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.Thinking, o.Thinking)
	set(&p.SettingReminder, o.SettingReminder)
	set(&p.NoReminders, o.NoReminders)
	set(&p.ReminderItem, o.ReminderItem)
	set(&p.ReminderSet, o.ReminderSet)
	set(&p.ReminderDue, o.ReminderDue)
	set(&p.GenerationFailed, o.GenerationFailed)
	set(&p.SomethingWrong, o.SomethingWrong)
	set(&p.TimeLayout, o.TimeLayout)
}

// Fill substitutes {key} placeholders from pairs of key, value.
func Fill(template string, kv ...string) string {
	if len(kv) == 0 {
		return template
	}
	args := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		args = append(args, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(args...).Replace(template)
}
