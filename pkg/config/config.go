// Package config holds the engine's configuration surface: every option
// spec §6 enumerates, plus the logging configuration the teacher's own
// cmd/init.go loads alongside it. Loading follows the teacher's pattern
// exactly — github.com/goccy/go-yaml into a plain struct, falling back to
// Default() when no file is present — just against a reshaped struct.
package config

// EngineOptions carries every option from spec §6's configuration table.
type EngineOptions struct {
	Logger LoggerConfig `yaml:"logger" validate:"required"`

	// ArenaBlockSize is the bump allocator's chunk granularity in bytes.
	ArenaBlockSize int `yaml:"arena_block_size" validate:"min=0"`

	// MemtablePrefixBloomBits is the total bit budget of the optional
	// membership filter; 0 disables it.
	MemtablePrefixBloomBits int `yaml:"memtable_prefix_bloom_bits" validate:"min=0"`

	// MemtableHugePageSize is a hint only; pkg/arena does not itself
	// request huge pages from the OS (there is no portable stdlib way to
	// do so), but the option is threaded through so callers embedding
	// this engine in an environment that does support it can act on it.
	MemtableHugePageSize int `yaml:"memtable_huge_page_size" validate:"min=0"`

	// MemtableWholeKeyFiltering is carried in the option set, but the
	// memtable does not read it: its bloom filter is always fed the whole
	// user key, and there is no prefix extractor.
	MemtableWholeKeyFiltering bool `yaml:"memtable_whole_key_filtering"`

	// InplaceUpdateSupport enables Memtable.Update; per spec §4.2's
	// invariants, enabling it means this memtable cannot support
	// snapshot reads.
	InplaceUpdateSupport bool `yaml:"inplace_update_support"`

	// InplaceUpdateNumLocks sizes the striped reader-writer lock array
	// guarding in-place payload mutation.
	InplaceUpdateNumLocks int `yaml:"inplace_update_num_locks" validate:"min=1"`

	// MaxSuccessiveMerges caps how many consecutive merge records Add
	// will chain before forcing a combine.
	MaxSuccessiveMerges int `yaml:"max_successive_merges" validate:"min=0"`

	// ProtectionBytesPerKey is the per-record checksum width; 0 disables
	// checksums entirely.
	ProtectionBytesPerKey int `yaml:"protection_bytes_per_key" validate:"min=0"`

	// DynamicDelay enables multi-source minimum-rate aggregation in the
	// write admission controller.
	DynamicDelay bool `yaml:"dynamic_delay"`

	// DelayedWriteRate is both the admission controller's initial rate
	// and its ceiling, in bytes per second.
	DelayedWriteRate uint64 `yaml:"delayed_write_rate" validate:"min=0"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns the option set a freshly constructed engine uses when no
// configuration file is supplied, mirroring pkg/arena's DefaultBlockSize
// and pkg/writecontroller's DefaultDelayedWriteRate.
func Default() EngineOptions {
	return EngineOptions{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		ArenaBlockSize:            4096,
		MemtablePrefixBloomBits:   0,
		MemtableHugePageSize:      0,
		MemtableWholeKeyFiltering: false,
		InplaceUpdateSupport:      false,
		InplaceUpdateNumLocks:     256,
		MaxSuccessiveMerges:       0,
		ProtectionBytesPerKey:     0,
		DynamicDelay:              false,
		DelayedWriteRate:          16 << 20,
	}
}
