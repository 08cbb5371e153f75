package host

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrreia/modcoreclr/internal/clr"
)

type recordingRegistrar struct {
	commands []Command
	apps     []Application
	binds    []Section
	fns      []uintptr
	fail     map[string]error
}

func (r *recordingRegistrar) RegisterCommand(cmd Command) error {
	if err := r.fail["command"]; err != nil {
		return err
	}
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recordingRegistrar) RegisterApplication(app Application) error {
	if err := r.fail["application"]; err != nil {
		return err
	}
	r.apps = append(r.apps, app)
	return nil
}

func (r *recordingRegistrar) BindConfigSearch(sections Section, fn uintptr) error {
	if err := r.fail["config"]; err != nil {
		return err
	}
	r.binds = append(r.binds, sections)
	r.fns = append(r.fns, fn)
	return nil
}

func TestRegisterEverySubset(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		table := clr.CallbackTable{}
		if mask&1 != 0 {
			table.Command = 0x1000
		}
		if mask&2 != 0 {
			table.Application = 0x2000
		}
		if mask&4 != 0 {
			table.Config = 0x3000
		}

		t.Run(table.String(), func(t *testing.T) {
			r := &recordingRegistrar{}
			done, err := Register(r, table, Names{})
			require.NoError(t, err)

			assert.Equal(t, Registered{
				Command:      table.Command != 0,
				Application:  table.Application != 0,
				ConfigSearch: table.Config != 0,
			}, done)

			if table.Command != 0 {
				assert.Equal(t, []Command{{
					Name:        "coreclr",
					Description: "Run a coreclr api",
					Usage:       "<api> [<args>]",
					Fn:          0x1000,
				}}, r.commands)
			} else {
				assert.Empty(t, r.commands)
			}

			if table.Application != 0 {
				assert.Equal(t, []Application{{
					Name:  "coreclr",
					Short: "Run a coreclr app",
					Long:  "Run a coreclr application in a channel",
					Usage: "<app> [<args>]",
					Flags: SupportNoMedia,
					Fn:    0x2000,
				}}, r.apps)
			} else {
				assert.Empty(t, r.apps)
			}

			if table.Config != 0 {
				assert.Equal(t, []Section{SectionConfiguration | SectionDirectory | SectionDialplan}, r.binds)
				assert.Equal(t, []uintptr{0x3000}, r.fns)
			} else {
				assert.Empty(t, r.binds)
			}
		})
	}
}

func TestRegisterCustomNames(t *testing.T) {
	r := &recordingRegistrar{}
	table := clr.CallbackTable{Command: 1, Application: 2, Config: 3}
	_, err := Register(r, table, Names{Command: "dotnet", Application: "dotnet_app", Sections: SectionChatplan})
	require.NoError(t, err)

	assert.Equal(t, "dotnet", r.commands[0].Name)
	assert.Equal(t, "dotnet_app", r.apps[0].Name)
	assert.Equal(t, []Section{SectionChatplan}, r.binds)
}

func TestRegisterContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	r := &recordingRegistrar{fail: map[string]error{"command": boom}}
	table := clr.CallbackTable{Command: 1, Application: 2, Config: 3}

	done, err := Register(r, table, Names{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrRegistration)
	assert.ErrorContains(t, err, "register command coreclr")
	assert.Equal(t, Registered{Application: true, ConfigSearch: true}, done)
	assert.Len(t, r.apps, 1)
	assert.Len(t, r.binds, 1)
}

func TestSectionBits(t *testing.T) {
	assert.EqualValues(t, 1, SectionConfiguration)
	assert.EqualValues(t, 2, SectionDirectory)
	assert.EqualValues(t, 4, SectionDialplan)
	assert.EqualValues(t, 8, SectionLanguages)
	assert.EqualValues(t, 16, SectionChatplan)
	assert.EqualValues(t, 32, SectionChannels)
	assert.EqualValues(t, 7, DefaultSections)
}

func TestParseSections(t *testing.T) {
	tests := []struct {
		in      []string
		want    Section
		wantErr bool
	}{
		{nil, 0, false},
		{[]string{"configuration", "directory", "dialplan"}, DefaultSections, false},
		{[]string{"Directory|chatplan"}, SectionDirectory | SectionChatplan, false},
		{[]string{"channels", " "}, SectionChannels, false},
		{[]string{"phrases"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			got, err := ParseSections(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSectionString(t *testing.T) {
	assert.Equal(t, "none", Section(0).String())
	assert.Equal(t, "configuration|directory|dialplan", DefaultSections.String())
	assert.Equal(t, "languages|0x40", (SectionLanguages | 0x40).String())
	assert.Equal(t, []string{"chatplan", "channels"}, (SectionChannels | SectionChatplan).Names())

	assert.True(t, DefaultSections.Has(SectionDirectory))
	assert.False(t, DefaultSections.Has(SectionLanguages))
	assert.False(t, DefaultSections.Has(0))
}
