package main

import (
	"testing"

	"github.com/nomusic/nomusic/domain/model"
)

func TestSeparationOptionsFromFlags(t *testing.T) {
	cases := []struct {
		modelStr string
		wantErr  bool
		want     model.SeparatorModel
	}{
		{modelStr: "spleeter", want: model.ModelSpleeter},
		{modelStr: "demucs", want: model.ModelDemucs},
		{modelStr: "both", want: model.ModelBoth},
		{modelStr: "", want: model.ModelBoth},
		{modelStr: "garbage", wantErr: true},
	}

	for _, tc := range cases {
		opts, err := separationOptionsFromFlags(tc.modelStr, false)
		if tc.wantErr {
			if err == nil {
				t.Errorf("separationOptionsFromFlags(%q) expected an error", tc.modelStr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("separationOptionsFromFlags(%q): %v", tc.modelStr, err)
		}
		if opts.Model != tc.want {
			t.Errorf("separationOptionsFromFlags(%q).Model = %v, want %v", tc.modelStr, opts.Model, tc.want)
		}
	}
}

func TestSeparationOptionsFromFlagsCarriesKeepTemp(t *testing.T) {
	opts, err := separationOptionsFromFlags("both", true)
	if err != nil {
		t.Fatalf("separationOptionsFromFlags: %v", err)
	}
	if !opts.KeepTemp {
		t.Error("KeepTemp = false, want true")
	}
}

func TestRunReportsUsageErrorExitCode(t *testing.T) {
	code := run([]string{"separate"})
	if code != exitUsage {
		t.Errorf("run(missing --file/--folder) exit code = %d, want %d", code, exitUsage)
	}
}

func TestRunReportsUnknownCommandAsFatal(t *testing.T) {
	code := run([]string{"bogus-command"})
	if code != exitFatal {
		t.Errorf("run(unknown command) exit code = %d, want %d", code, exitFatal)
	}
}
