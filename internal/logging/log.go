// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log writer. Writes to the console, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use by operators
type Log struct {
	mu    sync.Mutex
	out   io.Writer
	file  io.Writer // the optional additional file to log into
	sync  func() error
	close func() error
}

// Creates a log writing to the given console writer, or stdout if nil
func New(out io.Writer) *Log {
	if out == nil {
		out = os.Stdout
	}
	return &Log{out: out}
}

// Enables logging to file, closing any previous log file
func (l *Log) AlsoToFile(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	buf := bufio.NewWriter(f)
	l.file = buf
	l.sync = func() error {
		if err := buf.Flush(); err != nil {
			return err
		}
		return f.Sync()
	}
	l.close = func() error {
		err := buf.Flush()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return nil
}

// Enables logging to a size-limited file for long-running servers, closing any previous log file.
// The file is rotated once it exceeds maxSizeMB, keeping three compressed backups
func (l *Log) AlsoToRotatingFile(fileName string, maxSizeMB int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.closeFile(); err != nil {
		return err
	}
	lj := &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	l.file = lj
	l.sync = func() error { return nil }
	l.close = lj.Close
	return nil
}

func (l *Log) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err = l.out.Write(p)
	if err != nil || l.file == nil {
		return n, err
	}
	return l.file.Write(p)
}

func (l *Log) Printf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(l, format, args...)
}

// Prints the message, closes the log file and exits with status 1
func (l *Log) Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
	l.Close()
	os.Exit(1)
}

// Flushes buffered output to the log file
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.sync()
}

// Flushes and closes the log file, if any. Console output continues
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func (l *Log) closeFile() error {
	if l.file == nil {
		return nil
	}
	err := l.close()
	l.file, l.sync, l.close = nil, nil, nil
	return err
}
