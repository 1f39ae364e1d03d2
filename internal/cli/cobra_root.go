package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// buildRootCmdWith constructs the command tree bound to opts.
func buildRootCmdWith(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "gpuserve",
		Short:         "Serve one GPU model behind a small HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.Service, "service", "", "Model service: mesh|diffusion (defaults GPUSERVE_SERVICE)")
	pf.StringVar(&opts.CacheDir, "cache-dir", "", "Weight cache directory (defaults GPUSERVE_CACHE_DIR)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&opts.LogFormat, "log-format", "", "Log format: console|json")

	var workerWait time.Duration
	serveCmd := &cobra.Command{Use: "serve", Short: "Load the model and serve HTTP until idle or signaled", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return fnServe(cmd.Context(), cfg, workerWait)
	}}
	serveCmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (defaults GPUSERVE_ADDR or :8080)")
	serveCmd.Flags().StringVar(&opts.WorkerURL, "worker-url", "", "Model worker base URL")
	serveCmd.Flags().StringVar(&opts.CORS, "cors-origins", "", "Comma-separated allowed origins; enables CORS")
	serveCmd.Flags().DurationVar(&workerWait, "worker-wait", 2*time.Minute, "How long to wait for the model worker to become healthy (0 skips)")

	prepareCmd := &cobra.Command{Use: "prepare", Short: "Download model weights into the cache (image build step)", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return fnPrepare(cmd.Context(), cfg)
	}}

	modelsCmd := &cobra.Command{Use: "models", Short: "List cached model snapshots", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return fnListModels(cfg, cmd.OutOrStdout())
	}}

	// image group
	imageCmd := &cobra.Command{Use: "image", Short: "Render or build the container image for a service", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("image requires a subcommand: render|build")
	}}
	renderCmd := &cobra.Command{Use: "render", Short: "Print the Dockerfile and recipe digest", Example: "  gpuserve image render --service mesh", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return fnImageRender(cfg, cmd.OutOrStdout())
	}}
	var build BuildOptions
	buildCmd := &cobra.Command{Use: "build", Short: "Build the image unless the recipe digest is already built", Example: "  gpuserve image build --service diffusion --builder podman", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return fnImageBuild(cmd.Context(), cfg, build, cmd.OutOrStdout())
	}}
	buildCmd.Flags().StringVar(&build.Builder, "builder", "docker", "Image builder binary (docker, podman)")
	buildCmd.Flags().StringVar(&build.Repository, "repository", "gpuserve", "Image repository for the tag")
	buildCmd.Flags().StringVar(&build.Context, "context", ".", "Build context holding the gpuserve binary")
	imageCmd.AddCommand(renderCmd, buildCmd)

	root.AddCommand(serveCmd, prepareCmd, modelsCmd, imageCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}
