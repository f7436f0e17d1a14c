package staging

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

func encodeYAML(w io.Writer, sheet Sheet) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sheet); err != nil {
		return errors.Wrap(err, "encoding yaml")
	}
	return errors.Wrap(enc.Close(), "encoding yaml")
}

func decodeYAML(r io.Reader) (Sheet, error) {
	var sheet Sheet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sheet); err != nil {
		if err == io.EOF {
			return Sheet{}, errors.New("empty grades file")
		}
		return Sheet{}, errors.Wrap(err, "decoding yaml")
	}
	return sheet, nil
}
