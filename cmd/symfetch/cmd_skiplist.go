package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"symfetch/internal/negcache"
	"symfetch/internal/types"
)

// skiplistCmd manages the negative cache
var skiplistCmd = &cobra.Command{
	Use:   "skiplist",
	Short: "Inspect or edit the modules known to be missing from the symbol server",
}

var skiplistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skiplisted modules",
	Args:  cobra.NoArgs,
	RunE:  skiplistList,
}

var skiplistAddCmd = &cobra.Command{
	Use:   "add [debug-id] [debug-file]",
	Short: "Stop requesting a module",
	Args:  cobra.ExactArgs(2),
	RunE:  skiplistAdd,
}

var skiplistRemoveCmd = &cobra.Command{
	Use:   "remove [debug-id] [debug-file]",
	Short: "Re-enable a module so the next run requests it again",
	Args:  cobra.ExactArgs(2),
	RunE:  skiplistRemove,
}

func skiplistList(cmd *cobra.Command, args []string) error {
	cache, err := negcache.LoadNegativeCache(cfg.State.NegativeCacheFile)
	if err != nil {
		return err
	}
	if cache.Len() == 0 {
		fmt.Println("Skiplist is empty")
		return nil
	}
	for _, r := range cache.Entries() {
		fmt.Printf("%s %s\n", r.DebugID, r.DebugFile)
	}
	fmt.Printf("\n%d modules\n", cache.Len())
	return nil
}

func skiplistAdd(cmd *cobra.Command, args []string) error {
	return editSkiplist(args, func(c *negcache.NegativeCache, r types.ModuleRef) string {
		if c.Contains(r) {
			return fmt.Sprintf("%s already skiplisted", r)
		}
		c.Record(r)
		return fmt.Sprintf("Added %s", r)
	})
}

func skiplistRemove(cmd *cobra.Command, args []string) error {
	return editSkiplist(args, func(c *negcache.NegativeCache, r types.ModuleRef) string {
		if !c.Remove(r) {
			return fmt.Sprintf("%s is not skiplisted", r)
		}
		return fmt.Sprintf("Removed %s", r)
	})
}

func editSkiplist(args []string, edit func(*negcache.NegativeCache, types.ModuleRef) string) error {
	ref := types.ModuleRef{DebugID: args[0], DebugFile: args[1]}
	if !ref.Valid() {
		return fmt.Errorf("invalid module %q %q", args[0], args[1])
	}

	cache, err := negcache.LoadNegativeCache(cfg.State.NegativeCacheFile)
	if err != nil {
		return err
	}
	msg := edit(cache, ref)
	if cache.Dirty() {
		if err := cache.Save(cfg.State.NegativeCacheFile); err != nil {
			return err
		}
	}
	fmt.Println(msg)
	return nil
}
