package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tredeske/asftp"
)

var (
	flagConfig   string
	flagHost     string
	flagPort     int
	flagUser     string
	flagPassword string
	flagTimeout  time.Duration
	flagVerbose  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "asftp:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "asftp",
	Short: "Asynchronous SFTP client",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	pf.StringVarP(&flagHost, "host", "H", "", "server hostname")
	pf.IntVarP(&flagPort, "port", "P", 0, "server port (default 22)")
	pf.StringVarP(&flagUser, "user", "u", "", "username")
	pf.StringVar(&flagPassword, "password", "",
		"password (prompted when omitted)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "connect timeout")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(lsCmd, mkdirCmd, mvCmd, rmCmd, rmdirCmd, getCmd, putCmd)
}

// dial builds a Connection from config file and/or flags and connects.
// The caller must defer conn.Disconnect().
func dial() (*asftp.Connection, error) {
	cfg := &asftp.Config{}
	if 0 != len(flagConfig) {
		loaded, err := asftp.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if 0 != len(flagHost) {
		cfg.Hostname = flagHost
	}
	if 0 != flagPort {
		cfg.Port = flagPort
	}
	if 0 != len(flagUser) {
		cfg.Username = flagUser
	}
	if 0 != len(flagPassword) {
		cfg.Password = flagPassword
	}
	if 0 != flagTimeout {
		cfg.Timeout = flagTimeout.String()
	}
	if 0 == len(cfg.Password) {
		fmt.Fprintf(os.Stderr, "%s@%s password: ", cfg.Username, cfg.Hostname)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		cfg.Password = string(secret)
	}

	conn, err := cfg.Connection()
	if err != nil {
		return nil, err
	}
	if err = <-conn.Connect(); err != nil {
		return nil, err
	}
	return conn, nil
}

var lsCmd = &cobra.Command{
	Use:   "ls PATH",
	Short: "List a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Disconnect()

		res := <-conn.ListFiles(args[0])
		if res.Err != nil {
			return res.Err
		}
		for _, f := range res.V {
			fmt.Printf("%s %12d  %s  %s\n",
				f.Mode, f.Size, f.ModTime.Format(time.RFC3339), f.Name)
		}
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Disconnect()

		res := <-conn.MakeDirectory(args[0])
		if res.Err != nil {
			return res.Err
		}
		fmt.Printf("created %s\n", res.V.Path)
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv OLD NEW",
	Short: "Rename or move a remote item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Disconnect()

		res := <-conn.Rename(args[0], args[1])
		if res.Err != nil {
			return res.Err
		}
		fmt.Printf("renamed to %s\n", res.V.Path)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Remove a remote file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Disconnect()
		return <-conn.RemoveFile(args[0])
	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir PATH",
	Short: "Remove a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Disconnect()
		return <-conn.RemoveDirectory(args[0])
	},
}

var getCmd = &cobra.Command{
	Use:   "get REMOTE LOCAL",
	Short: "Download a remote file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(args[0], args[1], false)
	},
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL REMOTE",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(args[1], args[0], true)
	},
}

func runTransfer(remoteN, localN string, up bool) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	// ctrl-c cancels at the next chunk boundary
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigC)
	go func() {
		<-sigC
		fmt.Fprintln(os.Stderr, "\ncancelling...")
		conn.CancelTransfer()
	}()

	progress := func(done, total uint64) bool {
		fmt.Fprintf(os.Stderr, "\r%d / %d bytes", done, total)
		return true
	}

	var resC <-chan asftp.AsyncResult[*asftp.TransferResult]
	if up {
		resC = conn.Upload(remoteN, localN, progress)
	} else {
		resC = conn.Download(remoteN, localN, progress)
	}
	res := <-resC
	fmt.Fprintln(os.Stderr)
	if res.Err != nil {
		return res.Err
	}
	elapsed := res.V.Finish.Sub(res.V.Start)
	if 0 >= elapsed {
		elapsed = time.Millisecond
	}
	rate := float64(res.V.File.Size) / elapsed.Seconds()
	fmt.Printf("%s: %d bytes in %s (%.0f B/s)\n",
		res.V.File.Name, res.V.File.Size, elapsed.Round(time.Millisecond), rate)
	return nil
}
