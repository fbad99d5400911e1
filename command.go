package ddd

import (
	"encoding/json"
)

// Command names the intent behind an event. It is a comparable value object.
type Command struct {
	name  string
	isNew bool
}

var (
	Create = NewCommand("Create", true)
	Update = NewCommand("Update", false)
	Delete = NewCommand("Delete", false)
)

func NewCommand(name string, isNew bool) Command {
	return Command{name: name, isNew: isNew}
}

func (c Command) Name() string {
	return c.name
}

// IsNew reports whether the command creates the aggregate it targets.
func (c Command) IsNew() bool {
	return c.isNew
}

func (c Command) Equals(other any) bool {
	o, ok := other.(Command)
	if !ok {
		return false
	}
	return c == o
}

func (c Command) String() string {
	return c.name
}

type commandRecord struct {
	Name  string `json:"name"`
	IsNew bool   `json:"isNew"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandRecord{Name: c.name, IsNew: c.isNew})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var record commandRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	c.name = record.Name
	c.isNew = record.IsNew
	return nil
}
