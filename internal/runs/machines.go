package runs

type MachinePreset struct {
	Name     string  `json:"name"`
	CPU      float64 `json:"cpu"`
	MemoryGB float64 `json:"memory_gb"`
	DiskGB   int     `json:"disk_gb"`
}

// DefaultMachine is used when a run is created without an explicit preset.
const DefaultMachine = "small-1x"

var machinePresets = [...]MachinePreset{
	{Name: "micro", CPU: 0.25, MemoryGB: 0.25, DiskGB: 10},
	{Name: "small-1x", CPU: 0.5, MemoryGB: 0.5, DiskGB: 10},
	{Name: "small-2x", CPU: 1, MemoryGB: 1, DiskGB: 10},
	{Name: "medium-1x", CPU: 1, MemoryGB: 2, DiskGB: 10},
	{Name: "medium-2x", CPU: 2, MemoryGB: 4, DiskGB: 10},
	{Name: "large-1x", CPU: 4, MemoryGB: 8, DiskGB: 10},
	{Name: "large-2x", CPU: 8, MemoryGB: 16, DiskGB: 10},
}

func Machines() []MachinePreset {
	out := make([]MachinePreset, len(machinePresets))
	copy(out, machinePresets[:])
	return out
}

func PresetByName(name string) (MachinePreset, bool) {
	for _, p := range machinePresets {
		if p.Name == name {
			return p, true
		}
	}
	return MachinePreset{}, false
}

// Larger reports whether p gives the task process more memory than o.
func (p MachinePreset) Larger(o MachinePreset) bool {
	return p.MemoryGB > o.MemoryGB
}
