package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/yeisme/octavia/pkg/internal/lastfm"
	"github.com/yeisme/octavia/pkg/internal/service"
	kv "github.com/yeisme/octavia/pkg/internal/storage/kv"
)

// kvNamespaces 服务写入 KV 的命名空间.
var kvNamespaces = []string{service.PlaysNamespace, service.FlashNamespace, lastfm.CachePrefix}

var (
	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "Key-Value store related commands",
		Aliases: []string{"keyvalue"},
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered kv types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered kv types:")
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	kvKeysCmd = &cobra.Command{
		Use:       "keys [plays|flash|lastfm]",
		Short:     "list keys in the configured kv store, optionally within one namespace",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kvNamespaces,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := ""
			if len(args) == 1 {
				ns = args[0]
			}

			pattern, err := kvPattern(ns)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := kv.NewKVClient(cmd.Context(), &cfg.KV)
			if err != nil {
				return err
			}
			defer client.Close()

			keys, err := client.Keys(cmd.Context(), pattern)
			if err != nil {
				return err
			}

			slices.Sort(keys)

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}

			return nil
		},
	}
)

// kvPattern 把命名空间转换为 Keys 的 glob 模式，空命名空间匹配全部.
func kvPattern(ns string) (string, error) {
	if ns == "" {
		return "*", nil
	}

	if !slices.Contains(kvNamespaces, ns) {
		return "", fmt.Errorf("unknown kv namespace %q, want one of %v", ns, kvNamespaces)
	}

	return ns + ".*", nil
}

// registerKVCommands 注册 KV 相关命令.
func registerKVCommands() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvListCmd, kvKeysCmd)
}
