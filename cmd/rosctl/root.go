package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/rosctl/internal/config"
	"github.com/danmuck/rosctl/internal/protocol/session"
	"github.com/danmuck/rosctl/internal/remote"
	"github.com/danmuck/rosctl/internal/upload"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultInventory = "rosctl.toml"

var (
	errNoRouters      = errors.New("no routers: pass --host or configure an inventory")
	errAmbiguousRoute = errors.New("several routers configured: pass --router")
	errUploadsFailed  = errors.New("one or more uploads failed")
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	router     string
	host       string
	port       int
	user       string
	password   string
	askPass    bool
	tls        bool
	tlsCA      string
	insecure   bool

	// readPassword is swapped in tests.
	readPassword func() (string, error)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{readPassword: promptPassword}
	cmd := &cobra.Command{
		Use:           "rosctl",
		Short:         "Upload and manage RouterOS scripts over the API",
		Long:          "rosctl uploads RouterOS scripts over the binary API, staging oversized\nscripts as parts that the router reassembles through its own scheduler.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "router inventory (.toml, .yaml); defaults to ./rosctl.toml when present")
	flags.StringVar(&opts.router, "router", "", "inventory router name")
	flags.StringVar(&opts.host, "host", "", "router address, bypasses the inventory")
	flags.IntVar(&opts.port, "port", 0, "API port (8728, or 8729 with --tls)")
	flags.StringVar(&opts.user, "user", "admin", "API username with --host")
	flags.StringVar(&opts.password, "password", os.Getenv("ROSCTL_PASSWORD"), "API password with --host (env ROSCTL_PASSWORD)")
	flags.BoolVar(&opts.askPass, "ask-pass", false, "prompt for the password on the terminal")
	flags.BoolVar(&opts.tls, "tls", false, "use api-ssl with --host")
	flags.StringVar(&opts.tlsCA, "tls-ca", "", "CA bundle for api-ssl with --host")
	flags.BoolVar(&opts.insecure, "tls-insecure", false, "skip api-ssl certificate verification with --host")

	cmd.AddCommand(
		newUploadCmd(opts),
		newListCmd(opts),
		newTestCmd(opts),
		newRemoveCmd(opts),
		newCleanupCmd(opts),
		newWatchCmd(opts),
		newInitCmd(),
	)
	return cmd
}

// target is one resolved router with the upload settings that apply to it.
type target struct {
	router config.Router
	upload config.Upload
}

// resolve selects routers from flags or the inventory. With single set, more
// than one candidate without --router is an error.
func (o *globalOptions) resolve(single bool) ([]target, config.Upload, error) {
	settings := config.DefaultUpload()
	var routers []config.Router

	if strings.TrimSpace(o.host) != "" {
		r := config.Router{
			Name:                  o.host,
			Host:                  o.host,
			Port:                  o.port,
			Username:              o.user,
			Password:              o.password,
			TLS:                   o.tls,
			TLSCAFile:             o.tlsCA,
			TLSInsecureSkipVerify: o.insecure,
		}
		if err := config.ValidateRouter(r); err != nil {
			return nil, settings, err
		}
		routers = []config.Router{r}
		if o.configPath != "" {
			inv, err := config.Load(o.configPath)
			if err != nil {
				return nil, settings, err
			}
			settings = inv.Upload
		}
	} else {
		path := o.configPath
		if path == "" {
			if _, err := os.Stat(defaultInventory); err != nil {
				return nil, settings, errNoRouters
			}
			path = defaultInventory
		}
		inv, err := config.Load(path)
		if err != nil {
			return nil, settings, err
		}
		settings = inv.Upload
		if o.router != "" {
			r, err := inv.Router(o.router)
			if err != nil {
				return nil, settings, err
			}
			routers = []config.Router{r}
		} else {
			routers = inv.Routers
		}
	}

	if len(routers) == 0 {
		return nil, settings, errNoRouters
	}
	if single && len(routers) > 1 {
		return nil, settings, errAmbiguousRoute
	}
	if o.askPass {
		pw, err := o.readPassword()
		if err != nil {
			return nil, settings, err
		}
		for i := range routers {
			routers[i].Password = pw
		}
	}

	out := make([]target, len(routers))
	for i, r := range routers {
		out[i] = target{router: r, upload: settings}
	}
	return out, settings, nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-pass needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// client builds a session client using timeout for every exchange.
func (t target) client(timeout time.Duration) (*session.Client, error) {
	return session.NewClient(t.router.Endpoint(), t.router.SessionConfig(timeout))
}

func (t target) coordinator(inflight *upload.Inflight) (*upload.Coordinator, error) {
	client, err := t.client(t.upload.UploadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.router.Name, err)
	}
	repo := remote.NewRepository(client, remote.Options{DeletePolicy: t.upload.DeletePolicy()})
	return upload.NewCoordinator(client, repo, t.upload.CoordinatorConfig(t.router.Name, inflight)), nil
}

func printResult(w io.Writer, res upload.Result) {
	if res.OK {
		fmt.Fprintf(w, "ok    %-10s %-32s %-8s %6d bytes", res.Router, res.Name, res.Mode, res.Size)
		if res.Parts > 0 {
			fmt.Fprintf(w, " %d parts", res.Parts)
		}
		fmt.Fprintln(w)
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "      warning: %s\n", warn)
		}
		return
	}
	fmt.Fprintf(w, "FAIL  %-10s %-32s %s\n", res.Router, res.Name, res.Reason)
}
