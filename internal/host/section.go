package host

import (
	"fmt"
	"math/bits"
	"strings"
)

// Section is a bit set of host configuration sections. Bit values match
// the host's SWITCH_XML_SECTION_* constants.
type Section uint32

const (
	SectionConfiguration Section = 1 << iota
	SectionDirectory
	SectionDialplan
	SectionLanguages
	SectionChatplan
	SectionChannels
)

// DefaultSections is the mask the config callback is bound for.
const DefaultSections = SectionConfiguration | SectionDirectory | SectionDialplan

var sectionNames = []struct {
	bit  Section
	name string
}{
	{SectionConfiguration, "configuration"},
	{SectionDirectory, "directory"},
	{SectionDialplan, "dialplan"},
	{SectionLanguages, "languages"},
	{SectionChatplan, "chatplan"},
	{SectionChannels, "channels"},
}

// ParseSection returns the bit for a single section name.
func ParseSection(name string) (Section, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range sectionNames {
		if s.name == n {
			return s.bit, nil
		}
	}
	return 0, fmt.Errorf("unknown section %q", name)
}

// ParseSections combines names into a mask. Entries may also be
// "|"-separated lists.
func ParseSections(names []string) (Section, error) {
	var mask Section
	for _, entry := range names {
		for _, name := range strings.Split(entry, "|") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			bit, err := ParseSection(name)
			if err != nil {
				return 0, err
			}
			mask |= bit
		}
	}
	return mask, nil
}

// Has reports whether every bit of other is set.
func (s Section) Has(other Section) bool {
	return other != 0 && s&other == other
}

// Names lists the known sections in bit order.
func (s Section) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(s)))
	for _, n := range sectionNames {
		if s&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

func (s Section) String() string {
	if s == 0 {
		return "none"
	}
	out := strings.Join(s.Names(), "|")
	if rest := s &^ (SectionChannels<<1 - 1); rest != 0 {
		if out != "" {
			out += "|"
		}
		out += fmt.Sprintf("0x%x", uint32(rest))
	}
	return out
}
