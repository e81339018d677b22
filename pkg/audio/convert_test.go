package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
)

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{name: "mono passthrough", in: []int16{1, 2, 3}, channels: 1, want: []int16{1, 2, 3}},
		{name: "stereo average", in: []int16{100, 200, -100, -200}, channels: 2, want: []int16{150, -150}},
		{name: "stereo clamp", in: []int16{32767, 32767}, channels: 2, want: []int16{32767}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Int16s(audio.Downmix(audio.Encode(tt.in), tt.channels))
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := audio.Encode(make([]int16, 480))
	out := audio.ResampleMono16(pcm, 48000, 16000)
	if got := len(out) / 2; got != 160 {
		t.Errorf("resampled samples = %d, want 160", got)
	}
	if same := audio.ResampleMono16(pcm, 16000, 16000); len(same) != len(pcm) {
		t.Errorf("same-rate resample changed length")
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	var fc audio.FormatConverter
	at := time.Now()

	canonical := audio.Chunk{Data: audio.Encode([]int16{1, 2}), At: at}
	if got := fc.Convert(canonical); len(got.Data) != 4 || got.SampleRate != audio.SampleRate || got.Channels != 1 {
		t.Errorf("canonical chunk altered: %+v", got)
	}

	stereo48k := audio.Chunk{Data: audio.Encode(make([]int16, 960)), SampleRate: 48000, Channels: 2, At: at}
	got := fc.Convert(stereo48k)
	if n := len(got.Data) / 2; n != 160 {
		t.Errorf("converted samples = %d, want 160", n)
	}
	if !got.At.Equal(at) {
		t.Errorf("timestamp not preserved")
	}

	odd := audio.Chunk{Data: []byte{1, 2, 3}}
	if got := fc.Convert(odd); got.Data != nil {
		t.Errorf("misaligned chunk not dropped: %v", got.Data)
	}
}
