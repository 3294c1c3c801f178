package kv

import (
	"fmt"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/spf13/cobra"
)

// reply prints a decoded reply, or returns the transport error
func reply(rep engine.Reply, err error) error {
	if err != nil {
		return err
	}
	if rep.IsError() {
		return fmt.Errorf("%s", rep.String())
	}
	fmt.Println(rep.String())
	return nil
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("SET", args[0], args[1]))
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("GET", args[0]))
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("DEL", args[0]))
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Tests whether a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("EXISTS", args[0]))
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key]",
		Short: "Increments the integer value of a key by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("INCR", args[0]))
		},
	}
	decrCmd = &cobra.Command{
		Use:   "decr [key]",
		Short: "Decrements the integer value of a key by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("DECR", args[0]))
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key] [seconds]",
		Short: "Sets a time to live on a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("EXPIRE", args[0], args[1]))
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key]",
		Short: "Reads the remaining time to live of a key in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reply(kvClient.Do("TTL", args[0]))
		},
	}
	doCmd = &cobra.Command{
		Use:   "do [command] [args...]",
		Short: "Sends a raw command to the server",
		Long:  "Sends a raw command to the server, e.g. 'do HSET user name alice' or 'do LRANGE queue 0 -1'. Array replies are printed one element per line.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := kvClient.Do(args...)
			if err != nil {
				return err
			}
			if rep.IsError() {
				return fmt.Errorf("%s", rep.String())
			}
			if rep.Type == engine.ReplyArray {
				for i, elem := range rep.Elems {
					fmt.Printf("%d) %s\n", i+1, elem.String())
				}
				return nil
			}
			fmt.Println(rep.String())
			return nil
		},
	}
)
