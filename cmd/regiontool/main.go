// Command regiontool inspects a save directory.
//
//	regiontool [-config voxelstream.toml] [-dir saves/world] info
//	regiontool [-dir saves/world] ls
//	regiontool [-dir saves/world] verify
//	regiontool [-dir saves/world] dump X Y Z
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"voxelstream/internal/block"
	"voxelstream/internal/config"
	"voxelstream/internal/coords"
	"voxelstream/internal/game"
	"voxelstream/internal/region"
	"voxelstream/internal/world"
)

var (
	configPath = flag.String("config", "", "config file (.toml, .yaml) naming the save directory")
	dir        = flag.String("dir", "", "save directory; storage.dir from the config when empty")
	isDebug    = flag.Bool("debug", false, "Enable debug log output")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: regiontool [flags] info|ls|verify|dump X Y Z\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "regiontool:", err)
			os.Exit(1)
		}
	}
	if *dir == "" {
		*dir = cfg.Storage.Dir
	}

	logger := zap.NewNop()
	if *isDebug || cfg.Log.Debug {
		var err error
		if logger, err = cfg.Log.NewLogger(true); err != nil {
			panic(err)
		}
	}
	defer logger.Sync()

	ctx := context.Background()
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "info":
		err = info(os.Stdout)
	case "ls":
		err = list(ctx, os.Stdout, logger)
	case "verify":
		err = verify(ctx, os.Stdout, logger)
	case "dump":
		err = dump(ctx, os.Stdout, flag.Args()[1:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "regiontool:", err)
		os.Exit(1)
	}
}

func info(out *os.File) error {
	l, err := region.ReadLevel(*dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "world   %s\nseed    %d\nformat  %d\ncreated %s\n",
		l.WorldID, l.Seed, l.Format, l.CreatedAt.Format(time.RFC3339))
	return nil
}

// list prints the index when present, otherwise the region files.
func list(ctx context.Context, out *os.File, log *zap.Logger) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	idxPath := filepath.Join(*dir, game.IndexFile)
	if _, err := os.Stat(idxPath); err == nil {
		idx, err := region.OpenIndex(idxPath)
		if err != nil {
			return err
		}
		defer idx.Close()
		entries, err := idx.List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "REGION\tCHUNKS\tSIZE\tZSTD\tSAVED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%v\t%d\t%s\t%t\t%s\n",
				e.Region, e.Chunks, humanize.Bytes(uint64(e.Bytes)), e.Compressed, humanize.Time(e.SavedAt))
		}
		log.Debug("listed index", zap.Int("regions", len(entries)))
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	s, err := region.NewStore(*dir, region.WithLogger(log))
	if err != nil {
		return err
	}
	regions, err := s.Regions()
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "REGION\tSIZE\tMODIFIED")
	for _, r := range regions {
		st, err := os.Stat(s.Path(r))
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%v\t%s\t%s\n", r, humanize.Bytes(uint64(st.Size())), humanize.Time(st.ModTime()))
	}
	return nil
}

// verify decodes every region file and reports the ones that fail.
func verify(ctx context.Context, out *os.File, log *zap.Logger) error {
	s, err := region.NewStore(*dir, region.WithLogger(log))
	if err != nil {
		return err
	}
	regions, err := s.Regions()
	if err != nil {
		return err
	}
	bad := 0
	for _, r := range regions {
		st := world.NewStaging(r)
		if _, err := s.Load(ctx, r, st); err != nil {
			bad++
			fmt.Fprintf(out, "FAIL %v: %v\n", r, err)
			continue
		}
		fmt.Fprintf(out, "ok   %v: %d chunks\n", r, st.Len())
	}
	fmt.Fprintf(out, "%d regions, %d corrupt\n", len(regions), bad)
	if bad > 0 {
		return fmt.Errorf("%d corrupt regions", bad)
	}
	return nil
}

func dump(ctx context.Context, out *os.File, args []string, log *zap.Logger) error {
	if len(args) != 3 {
		return errors.New("dump needs region X Y Z")
	}
	var v [3]int
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("region coordinate %q: %w", a, err)
		}
		v[i] = n
	}
	r := coords.Vec3i{X: v[0], Y: v[1], Z: v[2]}

	s, err := region.NewStore(*dir, region.WithLogger(log))
	if err != nil {
		return err
	}
	st := world.NewStaging(r)
	found, err := s.Load(ctx, r, st)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("region %v was never saved", r)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "CHUNK\tMIN\tMAX\tBLOCKS")
	for _, ch := range st.Chunks() {
		lo, hi := ch.Bounds()
		if ch.IsEmpty() {
			fmt.Fprintf(tw, "%v\t-\t-\tempty\n", ch.Pos())
			continue
		}
		fmt.Fprintf(tw, "%v\t%v\t%v\t%s\n", ch.Pos(), lo, hi, histogram(ch, lo, hi))
	}
	return nil
}

// histogram counts the non-air ids inside the chunk bounds.
func histogram(ch *world.Chunk, lo, hi coords.Vec3i) string {
	counts := make(map[block.ID]int)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				if id := ch.GetBlock(x, y, z); !id.IsAir() {
					counts[id]++
				}
			}
		}
	}
	ids := make([]block.ID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += " "
		}
		s += id.String() + "=" + humanize.Comma(int64(counts[id]))
	}
	if s == "" {
		s = "air"
	}
	return s
}
