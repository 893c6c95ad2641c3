package store

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
)

func getJSONFrom(d *pebble.DB, key []byte, out interface{}) (bool, error) {
	val, closer, err := d.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, agoraerr.Wrap(agoraerr.KindTransient, err, "pebble get failed")
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return false, agoraerr.Wrap(agoraerr.KindFatal, err, "corrupt stored record")
	}
	return true, nil
}

func putJSONTo(d *pebble.DB, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return agoraerr.Wrap(agoraerr.KindInvalidInput, err, "marshal failed")
	}
	if err := d.Set(key, b, pebble.Sync); err != nil {
		return agoraerr.Wrap(agoraerr.KindTransient, err, "pebble set failed")
	}
	return nil
}

func getJSONBytes(raw []byte, out interface{}) error {
	return json.Unmarshal(raw, out)
}

// putRawTo stores value unencoded, for keys whose value IS the payload (e.g.
// an id used directly as a scan-ordering index entry) rather than a JSON
// envelope around it.
func putRawTo(d *pebble.DB, key, value []byte) error {
	if err := d.Set(key, value, pebble.Sync); err != nil {
		return agoraerr.Wrap(agoraerr.KindTransient, err, "pebble set failed")
	}
	return nil
}

func deleteKey(d *pebble.DB, key []byte) error {
	if err := d.Delete(key, pebble.Sync); err != nil {
		return agoraerr.Wrap(agoraerr.KindTransient, err, "pebble delete failed")
	}
	return nil
}

// scanPrefix iterates keys with the given prefix, invoking fn(key, value)
// for each. fn returning false stops the scan early.
func scanPrefix(d *pebble.DB, prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := d.NewIter(&pebble.IterOptions{})
	if err != nil {
		return agoraerr.Wrap(agoraerr.KindTransient, err, "pebble iterator failed")
	}
	defer iter.Close()
	for valid := iter.SeekGE(prefix); valid; valid = iter.Next() {
		k := iter.Key()
		if !hasPrefix(k, prefix) {
			break
		}
		if !fn(k, iter.Value()) {
			break
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
