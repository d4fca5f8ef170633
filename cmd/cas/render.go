package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"cas-go/internal/cas"
	"cas-go/internal/model"
)

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// shortID trims UUIDs and digests for listings.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// showProgress renders an upload on stderr until it finishes. Without a
// terminal it only waits, so redirected output stays clean.
func showProgress(name string, u *cas.Upload) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		<-u.Done()
		return
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	var last cas.Progress
	for p := range u.Subscribe() {
		bar.Describe(fmt.Sprintf("%s [%s]", name, p.Phase))
		bar.Set(p.Percent)
		last = p
	}
	if last.State == cas.StateFailed {
		bar.Exit()
		return
	}
	bar.Finish()
}

func printUploadResult(path string, res cas.UploadResult) {
	fmt.Printf("%s  %s  %s  %d chunks (%s new, %s deduplicated)\n",
		color.GreenString("uploaded"),
		shortID(res.FileID),
		path,
		res.ChunkCount,
		humanize.Comma(int64(res.NewChunks)),
		humanize.Comma(int64(res.DuplicateChunks)),
	)
}

func printFile(f *model.File) {
	star := " "
	if f.Starred {
		star = color.YellowString("*")
	}
	fmt.Printf("%s %-12s  %-9s  %10s  %s  %s\n",
		star,
		shortID(f.ID),
		f.Type,
		formatBytes(f.Size),
		formatTime(f.ModifiedAt),
		f.Name,
	)
}

func printFolder(f *model.Folder) {
	fmt.Printf("  %-12s  %-9s  %10s  %s  %s/\n",
		shortID(f.ID),
		"folder",
		"-",
		formatTime(f.CreatedAt),
		color.BlueString(f.Name),
	)
}
