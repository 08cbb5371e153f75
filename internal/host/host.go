// Package host registers the managed callbacks with the host process.
package host

import (
	"errors"
	"fmt"

	"github.com/corrreia/modcoreclr/internal/clr"
)

// ErrRegistration wraps every failure returned by Register.
var ErrRegistration = errors.New("host: registration failed")

// Registration text shown by the host.
const (
	DefaultName        = "coreclr"
	CommandDescription = "Run a coreclr api"
	CommandUsage       = "<api> [<args>]"
	ApplicationShort   = "Run a coreclr app"
	ApplicationLong    = "Run a coreclr application in a channel"
	ApplicationUsage   = "<app> [<args>]"
)

// AppFlag mirrors the host's application flags.
type AppFlag uint32

// SupportNoMedia is SAF_SUPPORT_NOMEDIA.
const SupportNoMedia AppFlag = 1

// Command is an api command backed by a native function pointer.
type Command struct {
	Name        string
	Description string
	Usage       string
	Fn          uintptr
}

// Application is a channel application backed by a native function pointer.
type Application struct {
	Name  string
	Short string
	Long  string
	Usage string
	Flags AppFlag
	Fn    uintptr
}

// Registrar is the host side of registration.
type Registrar interface {
	RegisterCommand(cmd Command) error
	RegisterApplication(app Application) error
	BindConfigSearch(sections Section, fn uintptr) error
}

// Names controls what the callbacks are registered as. Zero fields take
// the defaults.
type Names struct {
	Command     string
	Application string
	Sections    Section
}

func (n Names) withDefaults() Names {
	if n.Command == "" {
		n.Command = DefaultName
	}
	if n.Application == "" {
		n.Application = DefaultName
	}
	if n.Sections == 0 {
		n.Sections = DefaultSections
	}
	return n
}

// Registered reports which members were registered.
type Registered struct {
	Command      bool
	Application  bool
	ConfigSearch bool
}

func (r Registered) String() string {
	return fmt.Sprintf("command=%t application=%t config_search=%t", r.Command, r.Application, r.ConfigSearch)
}

// Register hands each non-null member of table to r. Absent members are
// skipped. A failing registration does not stop the others; the failures
// are joined.
func Register(r Registrar, table clr.CallbackTable, names Names) (Registered, error) {
	names = names.withDefaults()
	var done Registered
	var errs []error

	if table.Command != 0 {
		err := r.RegisterCommand(Command{
			Name:        names.Command,
			Description: CommandDescription,
			Usage:       CommandUsage,
			Fn:          table.Command,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("register command %s: %w", names.Command, err))
		} else {
			done.Command = true
		}
	}

	if table.Application != 0 {
		err := r.RegisterApplication(Application{
			Name:  names.Application,
			Short: ApplicationShort,
			Long:  ApplicationLong,
			Usage: ApplicationUsage,
			Flags: SupportNoMedia,
			Fn:    table.Application,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("register application %s: %w", names.Application, err))
		} else {
			done.Application = true
		}
	}

	if table.Config != 0 {
		if err := r.BindConfigSearch(names.Sections, table.Config); err != nil {
			errs = append(errs, fmt.Errorf("bind config search %s: %w", names.Sections, err))
		} else {
			done.ConfigSearch = true
		}
	}

	if len(errs) > 0 {
		return done, fmt.Errorf("%w: %w", ErrRegistration, errors.Join(errs...))
	}
	return done, nil
}
