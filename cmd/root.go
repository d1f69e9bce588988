package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slidetools/slidestitch/internal/assemble"
	"github.com/slidetools/slidestitch/internal/autodetect"
	"github.com/slidetools/slidestitch/internal/cache"
	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/internal/dump"
	"github.com/slidetools/slidestitch/internal/fetch"
	"github.com/slidetools/slidestitch/pkg/slide"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slidestitch",
	Short: "Download and assemble regions of remote tiled slide images",
	Long: `slidestitch reconstructs arbitrary regions of large tiled images by
downloading their 256x256 tiles, caching them on disk and stitching them
into a single PNG.

Examples:
  # Dump a whole slide image at zoom level 3
  slidestitch --host https://images.example.org --image 42 --image-width 100000 --image-height 80000 --max-zoom 8 --zoom 3 --dest ./out/{id}-z{zoom}.png

  # Pick the tile protocol explicitly and use 8 parallel downloads
  slidestitch --host https://images.example.org --image 42 --image-width 100000 --image-height 80000 --max-zoom 8 --zoom 3 --protocol zoomify --workers 8 --dest ./out/{id}.png

  # Only warm the tile cache, without assembling the image in memory
  slidestitch --host https://images.example.org --image 42 --image-width 100000 --image-height 80000 --max-zoom 8 --zoom 3 --stream

  # Start the HTTP server
  slidestitch serve --port 8080`,
	RunE: runDump,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.slidestitch.yaml)")
	rootCmd.PersistentFlags().String("host", "", "base URL of the image server")
	rootCmd.PersistentFlags().String("api-key", "", "API key sent with every request")
	rootCmd.PersistentFlags().String("working-dir", defaultWorkingDir(), "tile cache directory")

	// Image metadata
	rootCmd.Flags().Int64("image", 0, "image identifier (required)")
	rootCmd.Flags().Int("image-width", 0, "full resolution image width in pixels (required)")
	rootCmd.Flags().Int("image-height", 0, "full resolution image height in pixels (required)")
	rootCmd.Flags().Int("max-zoom", 0, "depth of the image pyramid (required)")
	rootCmd.Flags().String("path", "", "server-side path of the image")
	rootCmd.Flags().String("mime", "", "server-side mime type of the image")
	rootCmd.Flags().String("slice-path", "", "server-side path of the reference slice")
	rootCmd.Flags().String("slice-mime", "", "mime type of the reference slice")
	rootCmd.Flags().String("slice-server", "", "URL of the slice tiling server")

	// Dump options
	rootCmd.Flags().Int("zoom", 0, "zoom level to download at (0 = full resolution)")
	rootCmd.Flags().StringP("dest", "d", "./{id}-z{zoom}.png", "destination path pattern; {key} placeholders are substituted")
	rootCmd.Flags().String("protocol", "auto", "tile protocol (auto|window|iip|zoomify|pims)")
	rootCmd.Flags().IntP("workers", "j", 0, "parallel tile downloads (0 = number of CPUs)")
	rootCmd.Flags().Duration("tile-timeout", 0, "per-tile download timeout (0 = none)")
	rootCmd.Flags().Bool("stream", false, "only populate the tile cache, do not assemble")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("working-dir", rootCmd.PersistentFlags().Lookup("working-dir"))
	viper.BindPFlag("image", rootCmd.Flags().Lookup("image"))
	viper.BindPFlag("image-width", rootCmd.Flags().Lookup("image-width"))
	viper.BindPFlag("image-height", rootCmd.Flags().Lookup("image-height"))
	viper.BindPFlag("max-zoom", rootCmd.Flags().Lookup("max-zoom"))
	viper.BindPFlag("path", rootCmd.Flags().Lookup("path"))
	viper.BindPFlag("mime", rootCmd.Flags().Lookup("mime"))
	viper.BindPFlag("slice-path", rootCmd.Flags().Lookup("slice-path"))
	viper.BindPFlag("slice-mime", rootCmd.Flags().Lookup("slice-mime"))
	viper.BindPFlag("slice-server", rootCmd.Flags().Lookup("slice-server"))
	viper.BindPFlag("zoom", rootCmd.Flags().Lookup("zoom"))
	viper.BindPFlag("dest", rootCmd.Flags().Lookup("dest"))
	viper.BindPFlag("protocol", rootCmd.Flags().Lookup("protocol"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("tile-timeout", rootCmd.Flags().Lookup("tile-timeout"))
	viper.BindPFlag("stream", rootCmd.Flags().Lookup("stream"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".slidestitch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".slidestitch")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func defaultWorkingDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".slidestitch"
	}
	return dir + "/slidestitch"
}

func runDump(cmd *cobra.Command, args []string) error {
	host := viper.GetString("host")
	if host == "" {
		return fmt.Errorf("the image server host is required (use --host)")
	}
	id := viper.GetInt64("image")
	if id == 0 {
		return fmt.Errorf("the image identifier is required (use --image)")
	}
	width := viper.GetInt("image-width")
	height := viper.GetInt("image-height")
	maxZoom := viper.GetInt("max-zoom")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("positive image dimensions are required (use --image-width and --image-height)")
	}

	var slice *slide.SliceRef
	if viper.GetString("slice-path") != "" {
		slice = &slide.SliceRef{
			Path:      viper.GetString("slice-path"),
			Mime:      viper.GetString("slice-mime"),
			ServerURL: viper.GetString("slice-server"),
		}
	}
	s, err := slide.NewSlide(slide.Slide{
		ID:        id,
		Width:     width,
		Height:    height,
		MaxZoom:   maxZoom,
		Zoom:      viper.GetInt("zoom"),
		Path:      viper.GetString("path"),
		Mime:      viper.GetString("mime"),
		ServerURL: host,
		Slice:     slice,
	})
	if err != nil {
		return err
	}

	c := newClient(host)
	tileCache, err := cache.New(viper.GetString("working-dir"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	fetcher, protocol, err := selectFetcher(cmd, c, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Using tile protocol %q\n", protocol)

	d := &dump.Dumper{
		Assembler: &assemble.Assembler{
			Cache:       tileCache,
			Fetcher:     fetcher,
			Workers:     viper.GetInt("workers"),
			TileTimeout: viper.GetDuration("tile-timeout"),
		},
		Slide: s,
	}
	zone := dump.Zone{Props: map[string][]string{
		"id":   {strconv.FormatInt(s.ID, 10)},
		"zoom": {strconv.Itoa(s.Zoom)},
	}}

	start := time.Now()
	if viper.GetBool("stream") {
		if err := d.Stream(ctx, zone); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cached tiles for image %d in %s\n", s.ID, time.Since(start).Round(time.Millisecond))
		return nil
	}

	dest, err := d.Dump(ctx, zone, viper.GetString("dest"), false)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s in %s\n", dest, time.Since(start).Round(time.Millisecond))
	return nil
}

func newClient(host string) *client.Client {
	c := client.New(host)
	if key := viper.GetString("api-key"); key != "" {
		c.Headers = map[string]string{"X-API-Key": key}
	}
	return c
}

func selectFetcher(cmd *cobra.Command, c *client.Client, s *slide.Slide) (fetch.Fetcher, string, error) {
	protocol := viper.GetString("protocol")
	if protocol == "" || protocol == "auto" {
		return autodetect.Detect(cmd.Context(), c, s)
	}
	f, err := fetch.ByName(protocol, c)
	return f, protocol, err
}
