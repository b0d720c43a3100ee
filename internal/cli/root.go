package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"campusauth/internal/apiclient"
	"campusauth/internal/platform/logger"
	"campusauth/internal/policy"
	"campusauth/internal/verification"
)

const defaultAPI = "http://localhost:8080/api/v1"

// NewRootCommand builds the "campus" command. Flags can also be set through
// CAMPUS_* environment variables, e.g. CAMPUS_API.
func NewRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("campus")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "campus",
		Short:         "Sign in to the campus community with your university email",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("api", defaultAPI, "auth API base URL")
	pf.Bool("dev", false, "ask the server to return the code instead of mailing it")
	pf.StringSlice("domains", nil, "accepted email domains (default yorku.ca, my.yorku.ca)")
	pf.Duration("token-timeout", verification.DefaultTokenTimeout, "how long to wait for a link verification")
	pf.BoolP("verbose", "v", false, "log requests to stderr")
	_ = v.BindPFlags(pf)

	newApp := func() *App {
		level := "warn"
		if v.GetBool("verbose") {
			level = "debug"
		}
		log := logger.NewStderr(level)
		client := apiclient.New(v.GetString("api"), apiclient.WithLogger(log))
		return NewApp(client, in, out, log,
			verification.WithDevMode(v.GetBool("dev")),
			verification.WithAllowList(policy.NewAllowList(v.GetStringSlice("domains")...)),
			verification.WithTokenTimeout(v.GetDuration("token-timeout")),
		)
	}

	codeCmd := func(use, short string, flow verification.Flow) *cobra.Command {
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				email, _ := cmd.Flags().GetString("email")
				return quiet(newApp().RunCode(cmd.Context(), flow, email))
			},
		}
		cmd.Flags().String("email", "", "campus email address")
		return cmd
	}

	link := &cobra.Command{
		Use:   "link",
		Short: "Verify the token from an emailed sign-in link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			return quiet(newApp().RunLink(cmd.Context(), token))
		},
	}
	link.Flags().String("token", "", "token from the verification link")
	_ = link.MarkFlagRequired("token")

	root.AddCommand(
		codeCmd("signup", "Create an account", verification.FlowSignup),
		codeCmd("login", "Sign in to an existing account", verification.FlowLogin),
		link,
	)
	return root
}

// quiet turns a deliberate quit into a clean exit.
func quiet(err error) error {
	if errors.Is(err, ErrAbandoned) {
		return nil
	}
	return err
}
