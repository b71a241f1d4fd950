package wasmproc

// satModule is a hand-assembled module exercising the full host ABI:
// it exports memory, an alloc(size)->ptr that hands the host a scratch
// region at 2048, and a decide(ptr,len)->(ptr,len) that ignores its input
// and returns the constant JSON {"satisfiable":true} placed at 1024 by the
// data segment.
var satModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // WASM_BINARY_MAGIC
	0x01, 0x00, 0x00, 0x00, // WASM_BINARY_VERSION
	// Type section
	0x01, 0x0d, // section id, section size
	0x02,                                     // number of types
	0x60, 0x02, 0x7f, 0x7f, 0x02, 0x7f, 0x7f, // (func (param i32 i32) (result i32 i32))
	0x60, 0x01, 0x7f, 0x01, 0x7f, // (func (param i32) (result i32))
	// Function section
	0x03, 0x03, // section id, section size
	0x02,       // number of functions
	0x00, 0x01, // decide: type 0, alloc: type 1
	// Memory section
	0x05, 0x03, // section id, section size
	0x01,       // number of memories
	0x00, 0x01, // memory 0: min=1 page
	// Export section
	0x07, 0x1b, // section id, section size
	0x03,                                                 // number of exports
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // export "memory"
	0x06, 0x64, 0x65, 0x63, 0x69, 0x64, 0x65, 0x00, 0x00, // export "decide"
	0x05, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x00, 0x01, // export "alloc"
	// Code section
	0x0a, 0x0f, // section id, section size
	0x02,             // number of functions
	0x07,             // decide body size
	0x00,             // no locals
	0x41, 0x80, 0x08, // i32.const 1024
	0x41, 0x14, // i32.const 20
	0x0b, // end
	0x05, // alloc body size
	0x00, // no locals
	0x41, 0x80, 0x10, // i32.const 2048
	0x0b, // end
	// Data section: {"satisfiable":true} at offset 1024
	0x0b, 0x1b, // section id, section size
	0x01,             // number of segments
	0x00,             // memory 0
	0x41, 0x80, 0x08, // i32.const 1024
	0x0b, // end of offset expression
	0x14, // 20 bytes
	0x7b, 0x22, 0x73, 0x61, 0x74, 0x69, 0x73, 0x66,
	0x69, 0x61, 0x62, 0x6c, 0x65, 0x22, 0x3a, 0x74,
	0x72, 0x75, 0x65, 0x7d,
}

// echoModule exports decide(ptr,len)->(ptr,len) returning its input
// unchanged, so the host reads back the request JSON it just wrote. No
// alloc export: the request lands at offset 0.
var echoModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // WASM_BINARY_MAGIC
	0x01, 0x00, 0x00, 0x00, // WASM_BINARY_VERSION
	// Type section
	0x01, 0x08, // section id, section size
	0x01,                                     // number of types
	0x60, 0x02, 0x7f, 0x7f, 0x02, 0x7f, 0x7f, // (func (param i32 i32) (result i32 i32))
	// Function section
	0x03, 0x02, // section id, section size
	0x01, // number of functions
	0x00, // function 0, type 0
	// Memory section
	0x05, 0x03, // section id, section size
	0x01,       // number of memories
	0x00, 0x01, // memory 0: min=1 page
	// Export section
	0x07, 0x13, // section id, section size
	0x02,                                                 // number of exports
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // export "memory"
	0x06, 0x64, 0x65, 0x63, 0x69, 0x64, 0x65, 0x00, 0x00, // export "decide"
	// Code section
	0x0a, 0x08, // section id, section size
	0x01,       // number of functions
	0x06,       // function body size
	0x00,       // no locals
	0x20, 0x00, // local.get 0
	0x20, 0x01, // local.get 1
	0x0b, // end
}
