package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// barObserver renders pool progress as a terminal progress bar.
type barObserver struct {
	bar *progressbar.ProgressBar
}

func newBarObserver() *barObserver {
	return &barObserver{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("harvesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)}
}

func (o *barObserver) Advance(delta int) {
	_ = o.bar.Add(delta)
}

func (o *barObserver) SetTotal(total int) {
	o.bar.ChangeMax(total)
}

func (o *barObserver) Finish() {
	_ = o.bar.Finish()
}
