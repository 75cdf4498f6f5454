package stateful

import (
	"fmt"
	"io"
	"sort"
)

// Snapshot is the serialized state of a group of holders, keyed by holder
// name.
type Snapshot map[string]map[string]any

// Capture serializes the state of every holder.
func Capture(holders ...StateHolder) (Snapshot, error) {
	snapshot := make(Snapshot, len(holders))

	for _, h := range holders {
		if _, dup := snapshot[h.Name()]; dup {
			return nil, fmt.Errorf("duplicated state holder %s", h.Name())
		}

		data, err := h.State().Serialize()
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", h.Name(), err)
		}

		snapshot[h.Name()] = data
	}

	return snapshot, nil
}

// Apply restores every holder from the snapshot. Nothing is modified unless
// all holders can be restored.
func Apply(snapshot Snapshot, holders ...StateHolder) error {
	states := make([]State, len(holders))

	for i, h := range holders {
		data, ok := snapshot[h.Name()]
		if !ok {
			return fmt.Errorf("snapshot has no state for %s", h.Name())
		}

		state := h.State()
		if err := state.Deserialize(data); err != nil {
			return fmt.Errorf("deserialize %s: %w", h.Name(), err)
		}

		states[i] = state
	}

	for i, h := range holders {
		h.SetState(states[i])
	}

	return nil
}

// Names lists the holder names stored in the snapshot, sorted.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Save captures the holders and writes them with the codec.
func Save(w io.Writer, codec Codec, holders ...StateHolder) error {
	snapshot, err := Capture(holders...)
	if err != nil {
		return err
	}

	return Write(w, codec, snapshot)
}

// Write encodes a snapshot with the codec.
func Write(w io.Writer, codec Codec, snapshot Snapshot) error {
	data := make(map[string]any, len(snapshot))
	for name, state := range snapshot {
		data[name] = state
	}

	if err := codec.Encode(w, data); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	return nil
}

// Read decodes a snapshot written by Write.
func Read(r io.Reader, codec Codec) (Snapshot, error) {
	data, err := codec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	snapshot := make(Snapshot, len(data))

	for name, raw := range data {
		state, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("checkpoint entry %s: expect object, got %T",
				name, raw)
		}

		snapshot[name] = state
	}

	return snapshot, nil
}

// Load reads a checkpoint and applies it to the holders.
func Load(r io.Reader, codec Codec, holders ...StateHolder) error {
	snapshot, err := Read(r, codec)
	if err != nil {
		return err
	}

	return Apply(snapshot, holders...)
}
