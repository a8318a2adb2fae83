package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/plclib"
)

// KeyValues is the --options flag value: comma separated key or key:value
// items. A repeated key keeps its last value.
type KeyValues map[string]string

type optionSpec struct {
	valued bool
	apply  func(c *config.Config, value string) error
}

var optionSpecs = map[string]optionSpec{
	"no-timestamp": {apply: func(c *config.Config, _ string) error {
		c.PLCLib.Timestamp = false
		return nil
	}},
	"sort": {apply: func(c *config.Config, _ string) error {
		c.Convert.Sort = true
		return nil
	}},
	"strict": {apply: func(c *config.Config, _ string) error {
		c.Convert.Strict = true
		return nil
	}},
	"plclib-schemaver": {valued: true, apply: func(c *config.Config, v string) error {
		if _, err := plclib.ParseSchemaVersion(v); err != nil {
			return err
		}
		c.PLCLib.SchemaVersion = v
		return nil
	}},
	"plclib-indent": {valued: true, apply: func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 16 {
			return fmt.Errorf("plclib-indent: %q is not a number in 0-16", v)
		}
		c.PLCLib.Indent = n
		return nil
	}},
}

func optionNames() []string {
	names := make([]string, 0, len(optionSpecs))
	for name := range optionSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set parses one --options argument. The flag may be given several times.
func (kv *KeyValues) Set(s string) error {
	if *kv == nil {
		*kv = KeyValues{}
	}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, hasValue := strings.Cut(item, ":")
		key = strings.TrimSpace(key)
		spec, ok := optionSpecs[key]
		switch {
		case !ok:
			return fmt.Errorf("unknown option %q (known: %s)", key, strings.Join(optionNames(), ", "))
		case spec.valued && !hasValue:
			return fmt.Errorf("option %q needs a value (%s:<value>)", key, key)
		case !spec.valued && hasValue:
			return fmt.Errorf("option %q takes no value", key)
		}
		(*kv)[key] = strings.TrimSpace(value)
	}
	return nil
}

func (kv *KeyValues) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*kv))
	for k := range *kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, len(keys))
	for i, k := range keys {
		if v := (*kv)[k]; v != "" {
			items[i] = k + ":" + v
		} else {
			items[i] = k
		}
	}
	return strings.Join(items, ",")
}

func (kv *KeyValues) Type() string { return "keyvals" }

// ApplyTo overrides configuration values with the parsed options.
func (kv KeyValues) ApplyTo(c *config.Config) error {
	for _, key := range optionNamesIn(kv) {
		if err := optionSpecs[key].apply(c, kv[key]); err != nil {
			return err
		}
	}
	return nil
}

func optionNamesIn(kv KeyValues) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
