package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const welcome = "Welcome to the generic data analysis/prediction pipeline!"

// Prompt asks for the dataset path and the question, one line each.
func Prompt(in io.Reader, out io.Writer) (Request, error) {
	reader := bufio.NewReader(in)
	_, _ = fmt.Fprintln(out, welcome)

	path, err := readLine(reader, out, "Please enter the path to your data file: ")
	if err != nil {
		return Request{}, fmt.Errorf("read data file path: %w", err)
	}
	question, err := readLine(reader, out, "Please enter your query: ")
	if err != nil {
		return Request{}, fmt.Errorf("read query: %w", err)
	}
	return Request{DatasetPath: strings.TrimSpace(path), Question: question}, nil
}

// readLine returns the line without its terminator. A final line without a
// newline is accepted; an empty stream is io.ErrUnexpectedEOF.
func readLine(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", io.ErrUnexpectedEOF
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}
