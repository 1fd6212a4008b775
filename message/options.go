package message

import (
	"errors"
	"strings"

	pkgMath "github.com/edgewire/coapmsg/pkg/math"
)

// Options is the option section of a message: a multi-valued collection
// of options kept sorted by ascending OptionID. Among options with the
// same ID the insertion order is preserved, so the slice itself is the
// iteration order the header encoding requires.
type Options []Option

const maxPathValue = 255

// findPosition returns the index of the first option with an ID not
// less than id (prepend) or greater than id (!prepend). The two calls
// delimit the equal range of id.
func (options Options) findPosition(id OptionID, prepend bool) int {
	lo, hi := 0, len(options)
	for lo < hi {
		mid := (lo + hi) / 2
		if options[mid].ID < id || (!prepend && options[mid].ID == id) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Find returns the half-open index interval of all options with the
// given id, or ErrOptionNotFound.
func (options Options) Find(id OptionID) (int, int, error) {
	idxPre := options.findPosition(id, true)
	idxPost := options.findPosition(id, false)
	if idxPre == idxPost {
		return -1, -1, ErrOptionNotFound
	}
	return idxPre, idxPost, nil
}

func (options Options) HasOption(id OptionID) bool {
	_, _, err := options.Find(id)
	return err == nil
}

// Add appends opt behind the options that already share its ID. No
// deduplication takes place.
func (options Options) Add(opt Option) Options {
	idx := options.findPosition(opt.ID, false)
	options = append(options, Option{})
	copy(options[idx+1:], options[idx:])
	options[idx] = opt
	return options
}

// Set replaces all options with the same ID by opt.
func (options Options) Set(opt Option) Options {
	idxPre := options.findPosition(opt.ID, true)
	idxPost := options.findPosition(opt.ID, false)
	if idxPre == idxPost {
		return options.Add(opt)
	}
	options[idxPre] = opt
	n := copy(options[idxPre+1:], options[idxPost:])
	return options[:idxPre+1+n]
}

// Remove drops all options with the given id. Removing an absent id is
// a no-op.
func (options Options) Remove(id OptionID) Options {
	idxPre := options.findPosition(id, true)
	idxPost := options.findPosition(id, false)
	if idxPre == idxPost {
		return options
	}
	n := copy(options[idxPre:], options[idxPost:])
	return options[:idxPre+n]
}

// GetBytes returns the value of the first option with the given id.
func (options Options) GetBytes(id OptionID) ([]byte, error) {
	firstIdx, _, err := options.Find(id)
	if err != nil {
		return nil, err
	}
	return options[firstIdx].Value, nil
}

// GetString returns the value of the first option with the given id.
func (options Options) GetString(id OptionID) (string, error) {
	firstIdx, _, err := options.Find(id)
	if err != nil {
		return "", err
	}
	return string(options[firstIdx].Value), nil
}

// GetUint32 returns the value of the first option with the given id.
func (options Options) GetUint32(id OptionID) (uint32, error) {
	firstIdx, _, err := options.Find(id)
	if err != nil {
		return 0, err
	}
	val, _, err := DecodeUint32(options[firstIdx].Value)
	return val, err
}

// GetAllBytes writes the values of all options with the given id to r
// in insertion order. When r is too short it returns the needed size
// together with ErrShortRead.
func (options Options) GetAllBytes(id OptionID, r [][]byte) (int, error) {
	firstIdx, lastIdx, err := options.Find(id)
	if err != nil {
		return 0, err
	}
	if len(r) < lastIdx-firstIdx {
		return lastIdx - firstIdx, ErrShortRead
	}
	var idx int
	for i := firstIdx; i < lastIdx; i++ {
		r[idx] = options[i].Value
		idx++
	}
	return idx, nil
}

// GetStrings writes the values of all options with the given id to r in
// insertion order.
func (options Options) GetStrings(id OptionID, r []string) (int, error) {
	firstIdx, lastIdx, err := options.Find(id)
	if err != nil {
		return 0, err
	}
	if len(r) < lastIdx-firstIdx {
		return lastIdx - firstIdx, ErrShortRead
	}
	var idx int
	for i := firstIdx; i < lastIdx; i++ {
		r[idx] = string(options[i].Value)
		idx++
	}
	return idx, nil
}

// GetUint32s writes the values of all options with the given id to r in
// insertion order.
func (options Options) GetUint32s(id OptionID, r []uint32) (int, error) {
	firstIdx, lastIdx, err := options.Find(id)
	if err != nil {
		return 0, err
	}
	if len(r) < lastIdx-firstIdx {
		return lastIdx - firstIdx, ErrShortRead
	}
	var idx int
	for i := firstIdx; i < lastIdx; i++ {
		val, _, errD := DecodeUint32(options[i].Value)
		if errD != nil {
			return -1, errD
		}
		r[idx] = val
		idx++
	}
	return idx, nil
}

// AddBytes copies value into buf and appends it as an option with the
// given id. It returns the consumed buffer size.
func (options Options) AddBytes(buf []byte, id OptionID, value []byte) (Options, int, error) {
	if len(buf) < len(value) {
		return options, len(value), ErrTooSmall
	}
	n := copy(buf, value)
	return options.Add(Option{ID: id, Value: buf[:n]}), n, nil
}

// SetBytes copies value into buf and replaces all options with the
// given id by it.
func (options Options) SetBytes(buf []byte, id OptionID, value []byte) (Options, int, error) {
	if len(buf) < len(value) {
		return options, len(value), ErrTooSmall
	}
	n := copy(buf, value)
	return options.Set(Option{ID: id, Value: buf[:n]}), n, nil
}

// AddString copies value into buf and appends it as an option with the
// given id.
func (options Options) AddString(buf []byte, id OptionID, value string) (Options, int, error) {
	if len(buf) < len(value) {
		return options, len(value), ErrTooSmall
	}
	n := copy(buf, value)
	return options.Add(Option{ID: id, Value: buf[:n]}), n, nil
}

// SetString copies value into buf and replaces all options with the
// given id by it.
func (options Options) SetString(buf []byte, id OptionID, value string) (Options, int, error) {
	if len(buf) < len(value) {
		return options, len(value), ErrTooSmall
	}
	n := copy(buf, value)
	return options.Set(Option{ID: id, Value: buf[:n]}), n, nil
}

// AddUint32 encodes value into buf and appends it as an option with the
// given id.
func (options Options) AddUint32(buf []byte, id OptionID, value uint32) (Options, int, error) {
	enc, err := EncodeUint32(buf, value)
	if err != nil {
		return options, enc, err
	}
	return options.Add(Option{ID: id, Value: buf[:enc]}), enc, nil
}

// SetUint32 encodes value into buf and replaces all options with the
// given id by it.
func (options Options) SetUint32(buf []byte, id OptionID, value uint32) (Options, int, error) {
	enc, err := EncodeUint32(buf, value)
	if err != nil {
		return options, enc, err
	}
	return options.Set(Option{ID: id, Value: buf[:enc]}), enc, nil
}

// SetContentFormat replaces the ContentFormat option.
func (options Options) SetContentFormat(buf []byte, contentFormat MediaType) (Options, int, error) {
	return options.SetUint32(buf, ContentFormat, uint32(contentFormat))
}

// ContentFormat returns the value of the ContentFormat option.
func (options Options) ContentFormat() (MediaType, error) {
	v, err := options.GetUint32(ContentFormat)
	return MediaType(v), err
}

// GetPathBufferSize returns the number of buffer bytes SetPath consumes
// for the given path.
func GetPathBufferSize(path string) (int, error) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	size := 0
	for start := 0; start < len(path); {
		subPath := path[start:]
		end := strings.Index(subPath, "/")
		if end <= 0 {
			end = len(subPath)
		}
		if end > maxPathValue {
			return -1, ErrInvalidValueLength
		}
		size += end
		start += end + 1
	}
	return size, nil
}

// SetPath splits path on '/' and replaces the URIPath options by one
// option per segment, in path order. An empty path just removes them.
func (options Options) SetPath(buf []byte, path string) (Options, int, error) {
	o := options.Remove(URIPath)
	if len(path) == 0 {
		return o, 0, nil
	}
	if path[0] == '/' {
		path = path[1:]
	}
	encoded := 0
	for start := 0; start < len(path); {
		subPath := path[start:]
		end := strings.Index(subPath, "/")
		if end <= 0 {
			end = len(subPath)
		}
		if end > maxPathValue {
			return o, -1, ErrInvalidValueLength
		}
		var enc int
		var err error
		o, enc, err = o.AddString(buf[encoded:], URIPath, subPath[:end])
		if err != nil {
			return o, -1, err
		}
		encoded += enc
		start += end + 1
	}
	return o, encoded, nil
}

// Path joins the URIPath options to an absolute path.
func (options Options) Path() (string, error) {
	firstIdx, lastIdx, err := options.Find(URIPath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := firstIdx; i < lastIdx; i++ {
		b.WriteByte('/')
		b.Write(options[i].Value)
	}
	return b.String(), nil
}

// Queries returns the values of all URIQuery options in insertion
// order.
func (options Options) Queries() ([]string, error) {
	firstIdx, lastIdx, err := options.Find(URIQuery)
	if err != nil {
		return nil, err
	}
	q := make([]string, 0, lastIdx-firstIdx)
	for i := firstIdx; i < lastIdx; i++ {
		q = append(q, string(options[i].Value))
	}
	return q, nil
}

// ResetOptionsTo replaces the container content by in, copying all
// values into buf. On ErrTooSmall the returned size is the number of
// buffer bytes still missing.
func (options Options) ResetOptionsTo(buf []byte, in Options) (Options, int, error) {
	opts := options[:0]
	used := 0
	for idx, o := range in {
		if len(buf) < len(o.Value) {
			for i := idx; i < len(in); i++ {
				used += len(in[i].Value)
			}
			return options, used, ErrTooSmall
		}
		n := copy(buf, o.Value)
		opts = opts.Add(Option{ID: o.ID, Value: buf[:n]})
		buf = buf[n:]
		used += n
	}
	return opts, used, nil
}

// Clone returns a deep copy of the container.
func (options Options) Clone() (Options, error) {
	buf := make([]byte, 64)
	opts, used, err := make(Options, 0, len(options)).ResetOptionsTo(buf, options)
	if errors.Is(err, ErrTooSmall) {
		buf = append(buf, make([]byte, used)...)
		opts, _, err = make(Options, 0, len(options)).ResetOptionsTo(buf, options)
	}
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// Marshal writes the header encoding of the whole container: every
// option in ascending ID order, each as its delta from the previous
// option's ID. An empty container encodes to zero bytes. When buf is
// too small the needed size is returned with ErrTooSmall.
func (options Options) Marshal(buf []byte) (int, error) {
	previousID := OptionID(0)
	length := 0

	for _, o := range options {
		if length > len(buf) {
			buf = nil
		}

		var optionLength int
		var err error
		if buf != nil {
			optionLength, err = o.Marshal(buf[length:], previousID)
		} else {
			optionLength, err = o.Marshal(nil, previousID)
		}
		previousID = o.ID

		switch {
		case err == nil:
		case errors.Is(err, ErrTooSmall):
			buf = nil
		default:
			return -1, err
		}
		length += optionLength
	}
	if length > len(buf) {
		return length, ErrTooSmall
	}
	return length, nil
}

// Unmarshal reads options from data until it is exhausted or an 0xff
// payload marker is hit, and returns the number of consumed bytes
// including the marker. Bytes after the marker are the payload and are
// left for the caller.
func (m *Options) Unmarshal(data []byte, optionDefs map[OptionID]OptionDef) (int, error) {
	prev := 0
	processed := 0
	for len(data) > 0 {
		if data[0] == 0xff {
			processed++
			break
		}

		delta := int(data[0] >> 4)
		length := int(data[0] & 0x0f)

		if delta == ExtendOptionError || length == ExtendOptionError {
			return -1, ErrOptionUnexpectedExtendMarker
		}

		data = data[1:]
		processed++

		proc, delta, err := parseExtOpt(data, delta)
		if err != nil {
			return -1, err
		}
		processed += proc
		data = data[proc:]
		proc, length, err = parseExtOpt(data, length)
		if err != nil {
			return -1, err
		}
		processed += proc
		data = data[proc:]

		if len(data) < length {
			return -1, ErrOptionTruncated
		}

		id, errCast := pkgMath.SafeCastTo[uint16](prev + delta)
		if errCast != nil {
			return -1, ErrInvalidOptionHeaderExt
		}

		option := Option{}
		_, err = option.Unmarshal(data[:length], optionDefs, OptionID(id))
		if err != nil {
			return -1, err
		}
		// A nil value means the option was skipped per its registry
		// definition; its bytes are still consumed from the wire.
		if option.Value != nil {
			*m = append(*m, option)
		}

		processed += length
		data = data[length:]
		prev += delta
	}

	return processed, nil
}
