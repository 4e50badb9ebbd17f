package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitetime/internal/convert"
)

// emit prints s as indented JSON. It passes err through so callers can write
// c.emit(convert.XxxStruct(v)).
func (c *cli) emit(s *structpb.Struct, err error) error {
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}

func (c *cli) say(format string, args ...any) error {
	_, err := fmt.Fprintf(c.out, format+"\n", args...)
	return err
}

// readSecret returns v, or the first line of in when v is empty.
func readSecret(in io.Reader, v, what string) (string, error) {
	if v != "" {
		return v, nil
	}
	sc := bufio.NewScanner(in)
	if sc.Scan() {
		if s := strings.TrimRight(sc.Text(), "\r\n"); s != "" {
			return s, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s is required", what)
}

// readAll reads the named file, or stdin for "-".
func readAll(in io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(p)
}

var localLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"}

// parseWhen accepts RFC 3339 or a local wall-clock time.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if t, err := convert.ParseTime(s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD HH:MM", s)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
