package gcode

// Reader is implemented by sources of parsed blocks, such as Parser.
type Reader interface {
	Read() (Block, error)
}
