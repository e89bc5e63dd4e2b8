package kv

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Counts the records of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()

			if n, err := kvStore.Count(ctx).Result(); err != nil {
				return err
			} else {
				fmt.Printf("namespace=%s, count=%d\n", viper.GetString("namespace"), n)
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := parseArg(args[0])

			ctx, cancel := util.Context()
			defer cancel()

			if resp, err := kvStore.Get(ctx, key).Result(); err != nil {
				return err
			} else {
				fmt.Printf("key=%v, found=%v, resp=%s\n", key, resp != nil, formatValue(resp))
			}
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := parseArg(args[0])
			value := parseArg(args[1])

			ctx, cancel := util.Context()
			defer cancel()

			if err := kvStore.Set(ctx, key, value).Err(); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := parseArg(args[0])

			ctx, cancel := util.Context()
			defer cancel()

			if err := kvStore.Remove(ctx, key).Err(); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	namespacesCmd = &cobra.Command{
		Use:   "namespaces [name...]",
		Short: "Defines the given namespaces and lists all namespaces of this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()

			for _, name := range args {
				if _, err := adapter.Storage(ctx, name); err != nil {
					return err
				}
			}

			for _, name := range adapter.Namespaces() {
				s, err := adapter.Storage(ctx, name)
				if err != nil {
					return err
				}
				n, err := s.Count(ctx).Result()
				if err != nil {
					return err
				}
				ttl := "disabled"
				if s.TTL() > 0 {
					ttl = s.TTL().String()
				}
				fmt.Printf("namespace=%s, count=%d, ttl=%s\n", name, n, ttl)
			}
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseArg decodes arg as a JSON literal if --json is set, otherwise it is used as is.
// Arguments that are not valid JSON stay strings, integral numbers become int64.
func parseArg(arg string) any {
	if !viper.GetBool("json") {
		return arg
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return v
}

// formatValue renders a stored value for printing
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
