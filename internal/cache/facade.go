package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
)

// unavailableLogInterval bounds how often a store outage is logged; every
// request sees it, one line per interval is enough.
const unavailableLogInterval = 10 * time.Second

// Facade is the fail-soft view of a Store.
type Facade struct {
	store       Store
	logger      logging.Logger
	unavailable *logging.Sampled
}

// New wraps store. A nil logger uses the global logger.
func New(store Store, logger logging.Logger) *Facade {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.String("component", "cache"))
	return &Facade{
		store:       store,
		logger:      logger,
		unavailable: logging.NewSampled(logger, unavailableLogInterval),
	}
}

// Get decodes the payload at key into dest and reports whether it did. A
// missing key, a store fault and a malformed payload all return false.
func (f *Facade) Get(ctx context.Context, key string, dest interface{}) bool {
	data, found, err := f.store.Get(ctx, key)
	if err != nil {
		f.fault("get", key, err)
		return false
	}
	if !found {
		return false
	}

	if err := decode(data, dest); err != nil {
		f.logger.Warn("Discarding malformed cache payload",
			logging.String("key", key),
			logging.Err(errors.SerializationError("decode failed", err)))
		return false
	}
	return true
}

// decode unmarshals into a fresh value and copies it to dest only on
// success, so a payload that fails halfway leaves dest untouched.
func decode(data []byte, dest interface{}) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return json.Unmarshal(data, dest)
	}
	tmp := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, tmp.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}

// Set encodes value and stores it with the given expiry. Every entry must
// expire, so a non-positive ttl is refused.
func (f *Facade) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		f.logger.Warn("Refusing cache write without expiry",
			logging.String("key", key),
			logging.Duration("ttl", ttl))
		return false
	}

	data, err := json.Marshal(value)
	if err != nil {
		f.logger.Warn("Failed to encode cache payload",
			logging.String("key", key),
			logging.Err(errors.SerializationError("encode failed", err)))
		return false
	}

	if err := f.store.Set(ctx, key, data, ttl); err != nil {
		f.fault("set", key, err)
		return false
	}
	return true
}

// Delete removes a single key.
func (f *Facade) Delete(ctx context.Context, key string) bool {
	if err := f.store.Delete(ctx, key); err != nil {
		f.fault("delete", key, err)
		return false
	}
	return true
}

// DeleteByPattern removes every key matching pattern.
func (f *Facade) DeleteByPattern(ctx context.Context, pattern string) bool {
	deleted, err := f.store.DeleteByPattern(ctx, pattern)
	if err != nil {
		f.fault("delete_by_pattern", pattern, err)
		return false
	}
	f.logger.Info("Cache keys invalidated",
		logging.String("pattern", pattern),
		logging.Int("deleted", deleted))
	return true
}

// FlushAll clears the whole store. Administrative use only.
func (f *Facade) FlushAll(ctx context.Context) bool {
	if err := f.store.FlushAll(ctx); err != nil {
		f.fault("flush_all", "*", err)
		return false
	}
	f.logger.Warn("Cache flushed")
	return true
}

// fault logs a store error. Connectivity problems are sampled; anything else
// is logged every time.
func (f *Facade) fault(op, key string, err error) {
	fields := []logging.Field{
		logging.String("operation", op),
		logging.String("key", key),
		logging.Err(err),
	}
	if errors.IsType(err, errors.ErrTypeConnection) {
		f.unavailable.Warn("Cache store unavailable, continuing without cache", fields...)
		return
	}
	f.logger.Warn("Cache operation failed", fields...)
}
