package zostel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reinhart/zostelAgent/internal/assistant"
)

const dateLayout = "2006-01-02"

// --- Discovery Tools ---

type LocationsTool struct {
	Directory *Directory
}

type LocationsArgs struct {
	Location string `json:"location"`
}

func (t *LocationsTool) Definition() assistant.ToolDefinition {
	desc := "Get a list of Zostel locations in a specific state or city"
	if states := t.Directory.States(); len(states) > 0 {
		desc += ". Known states: " + strings.Join(states, ", ")
	}
	return assistant.ToolDefinition{
		Name:        "get_zostel_locations",
		Description: desc,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string", "description": "The state or city to search for Zostel locations"}
			},
			"required": ["location"]
		}`),
	}
}

func (t *LocationsTool) Execute(_ context.Context, args json.RawMessage) (any, error) {
	var a LocationsArgs
	if err := assistant.DecodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Location) == "" {
		return nil, errors.New("location is required")
	}
	return t.Directory.Locations(a.Location), nil
}

// --- Booking Tools ---

type AvailabilityTool struct{}

type AvailabilityArgs struct {
	Location string `json:"location"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
}

func (t *AvailabilityTool) Definition() assistant.ToolDefinition {
	return assistant.ToolDefinition{
		Name:        "check_availability",
		Description: "Check room availability at a specific Zostel location",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string", "description": "The Zostel location to check"},
				"checkIn": {"type": "string", "description": "Check-in date in YYYY-MM-DD format"},
				"checkOut": {"type": "string", "description": "Check-out date in YYYY-MM-DD format"}
			},
			"required": ["location", "checkIn", "checkOut"]
		}`),
	}
}

func (t *AvailabilityTool) Execute(_ context.Context, args json.RawMessage) (any, error) {
	var a AvailabilityArgs
	if err := assistant.DecodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Location) == "" {
		return nil, errors.New("location is required")
	}

	// Bad dates come back as a result so the model can ask the guest again.
	in, err := time.Parse(dateLayout, a.CheckIn)
	if err != nil {
		return fmt.Sprintf("Could not read check-in date %q. Ask the guest for dates as YYYY-MM-DD.", a.CheckIn), nil
	}
	out, err := time.Parse(dateLayout, a.CheckOut)
	if err != nil {
		return fmt.Sprintf("Could not read check-out date %q. Ask the guest for dates as YYYY-MM-DD.", a.CheckOut), nil
	}
	if !out.After(in) {
		return fmt.Sprintf("Check-out %s is not after check-in %s. Ask the guest to confirm their dates.", a.CheckOut, a.CheckIn), nil
	}

	// No booking backend yet; the model relays this to the guest.
	return fmt.Sprintf("Checking availability at %s from %s to %s...", a.Location, a.CheckIn, a.CheckOut), nil
}

// RegisterTools adds the Zostel tools to a registry.
func RegisterTools(r *assistant.ToolRegistry, d *Directory) error {
	for _, t := range []assistant.Tool{
		&LocationsTool{Directory: d},
		&AvailabilityTool{},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
