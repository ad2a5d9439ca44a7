package driver

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/loopworks/renderpipe/handle"
)

// wgpuDriver is the concrete Driver backed by cogentcore/webgpu. Construction
// goes instance -> adapter -> device -> queue, and surface configuration
// reads the swapchain format from surface capabilities, with an optional
// MSAA target and a depth target sized to match.
type wgpuDriver struct {
	guard threadGuard

	allocators Allocators

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	sampleCount   MSAASampleCount

	depthView *wgpu.TextureView
	msaaView  *wgpu.TextureView

	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	mu       sync.Mutex
	buffers  map[handle.Index]*wgpu.Buffer
	textures map[handle.Index]*wgpu.Texture

	// programs holds the compiled render pipeline for each live program
	// handle. uniformLayout/pipelineLayout are shared across every program,
	// since this driver's only bound resource is the global-state uniform
	// buffer at binding 0.
	programs       map[handle.Index]*wgpu.RenderPipeline
	uniformLayout  *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout

	// hostMapped holds the producer-visible staging view for persistent
	// buffers, since WebGPU has no literal PERSISTENT|MAP_WRITE|
	// MAP_FLUSH_EXPLICIT mapping: writes land here and FlushMappedRange
	// copies them to the GPU buffer.
	hostMapped map[handle.Index][]byte

	uniformBinding struct {
		handle       handle.Handle
		offset, size int
	}

	querySet         *wgpu.QuerySet
	queryNext        uint32
	queryCap         uint32
	queryResult      map[handle.Index]uint64
	queryResolveBuf  *wgpu.Buffer
	queryReadbackBuf *wgpu.Buffer
	pendingQueries   []pendingQuery
}

// pendingQuery records which query handle wrote the timestamp at slot,
// between QueryTimestamp and the resolve pass run at SwapBuffers.
type pendingQuery struct {
	idx  handle.Index
	slot uint32
}

// NewWGPUDriver constructs an uninitialized wgpu-backed Driver. Call
// Preinit then Init before issuing any other calls.
func NewWGPUDriver() Driver {
	return &wgpuDriver{
		buffers:     make(map[handle.Index]*wgpu.Buffer),
		textures:    make(map[handle.Index]*wgpu.Texture),
		hostMapped:  make(map[handle.Index][]byte),
		programs:    make(map[handle.Index]*wgpu.RenderPipeline),
		queryResult: make(map[handle.Index]uint64),
	}
}

func (d *wgpuDriver) Preinit(allocators Allocators) {
	d.allocators = allocators
}

// windowSurfaceSource is satisfied by the window package's Window, which
// supplies a *wgpu.SurfaceDescriptor without this package importing window
// directly (window would otherwise need to import driver for Driver.Init's
// signature, and driver would need window for the descriptor type).
type windowSurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
}

func (d *wgpuDriver) Init(windowHandle WindowHandle, width, height int, present PresentMode, samples MSAASampleCount) error {
	runtime.LockOSThread()
	d.guard.Bind()

	src, ok := windowHandle.(windowSurfaceSource)
	if !ok {
		return fmt.Errorf("driver: windowHandle does not supply a wgpu surface descriptor")
	}

	d.instance = wgpu.CreateInstance(nil)
	d.surface = d.instance.CreateSurface(src.SurfaceDescriptor())

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: d.surface,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = adapter

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8

	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "renderpipe device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.presentMode = presentModeToWGPU(present)
	d.sampleCount = samples

	d.querySet, err = dev.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: "renderpipe timestamps",
		Type:  wgpu.QueryTypeTimestamp,
		Count: 256,
	})
	if err != nil {
		return fmt.Errorf("create query set: %w", err)
	}
	d.queryCap = 256

	resolveSize := uint64(d.queryCap) * 8
	d.queryResolveBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "renderpipe query resolve",
		Size:  resolveSize,
		Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create query resolve buffer: %w", err)
	}
	d.queryReadbackBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "renderpipe query readback",
		Size:  resolveSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create query readback buffer: %w", err)
	}

	d.uniformLayout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "renderpipe uniform layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform bind group layout: %w", err)
	}
	d.pipelineLayout, err = dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "renderpipe pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.uniformLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	d.Resize(width, height)
	return nil
}

func presentModeToWGPU(p PresentMode) wgpu.PresentMode {
	if p == PresentModeUncapped {
		return wgpu.PresentModeImmediate
	}
	return wgpu.PresentModeFifo
}

func (d *wgpuDriver) Resize(width, height int) {
	d.guard.Check()

	caps := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = caps.Formats[0]

	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: d.presentMode,
		AlphaMode:   caps.AlphaModes[0],
	})

	count := uint32(d.sampleCount)
	if count > 1 {
		msaaTex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "msaa",
			Size:          wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        d.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err == nil {
			d.msaaView, _ = msaaTex.CreateView(nil)
		}
	} else {
		d.msaaView = nil
	}

	depthTex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "depth",
		Size:          wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err == nil {
		d.depthView, _ = depthTex.CreateView(nil)
	}
}

func (d *wgpuDriver) Shutdown() {
	d.guard.Check()

	d.mu.Lock()
	defer d.mu.Unlock()
	for idx, buf := range d.buffers {
		buf.Destroy()
		delete(d.buffers, idx)
	}
	for idx, tex := range d.textures {
		tex.Destroy()
		delete(d.textures, idx)
	}
	for idx, p := range d.programs {
		p.Release()
		delete(d.programs, idx)
	}
	if d.querySet != nil {
		d.querySet.Destroy()
	}
	if d.queryResolveBuf != nil {
		d.queryResolveBuf.Destroy()
	}
	if d.queryReadbackBuf != nil {
		d.queryReadbackBuf.Destroy()
	}
}

func (d *wgpuDriver) CheckThread() { d.guard.Check() }

func (d *wgpuDriver) SwapBuffers() error {
	d.guard.Check()
	d.resolveQueries()
	d.surface.Present()
	return nil
}

// resolveQueries finishes and submits the frame's command encoder (if any
// timestamp or debug-group call opened one), resolving the timer-query set
// into a readback buffer and copying each resolved timestamp into
// queryResult. Blocks on device.Poll until the readback buffer is mapped;
// this runs once per frame, on the render thread, alongside the swap. When
// no timestamp was written this frame, the encoder is released without
// being submitted.
func (d *wgpuDriver) resolveQueries() {
	if d.frameEncoder == nil {
		return
	}
	enc := d.frameEncoder
	d.frameEncoder = nil

	pending := d.pendingQueries
	d.pendingQueries = nil
	d.queryNext = 0

	if len(pending) == 0 {
		enc.Release()
		return
	}

	size := uint64(d.queryCap) * 8
	enc.ResolveQuerySet(d.querySet, 0, d.queryCap, d.queryResolveBuf, 0)
	enc.CopyBufferToBuffer(d.queryResolveBuf, 0, d.queryReadbackBuf, 0, size)

	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return
	}
	d.queue.Submit(cmd)
	cmd.Release()

	done := make(chan struct{})
	if err := d.queryReadbackBuf.MapAsync(wgpu.MapModeRead, 0, size, func(wgpu.BufferMapAsyncStatus) {
		close(done)
	}); err != nil {
		return
	}
	d.device.Poll(true, nil)
	<-done

	raw := d.queryReadbackBuf.GetMappedRange(0, size)
	timestamps := make([]uint64, d.queryCap)
	for i := range timestamps {
		timestamps[i] = binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
	}
	d.queryReadbackBuf.Unmap()

	d.mu.Lock()
	for _, pq := range pending {
		d.queryResult[pq.idx] = timestamps[pq.slot]
	}
	d.mu.Unlock()
}

func bufferUsage(flags BufferFlags) wgpu.BufferUsage {
	usage := wgpu.BufferUsageCopyDst | wgpu.BufferUsageVertex | wgpu.BufferUsageIndex | wgpu.BufferUsageUniform
	if flags&BufferFlagMapWrite != 0 {
		usage |= wgpu.BufferUsageCopySrc
	}
	return usage
}

func (d *wgpuDriver) CreateBuffer(h handle.Handle, flags BufferFlags, size int, initial []byte) error {
	d.guard.Check()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            fmt.Sprintf("buffer-%d", h.Index()),
		Size:             uint64(size),
		Usage:            bufferUsage(flags),
		MappedAtCreation: false,
	})
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}
	if len(initial) > 0 {
		d.queue.WriteBuffer(buf, 0, initial)
	}

	d.mu.Lock()
	d.buffers[h.Index()] = buf
	if flags&BufferFlagPersistent != 0 {
		d.hostMapped[h.Index()] = make([]byte, size)
	}
	d.mu.Unlock()
	return nil
}

func (d *wgpuDriver) UpdateBuffer(h handle.Handle, offset int, data []byte) error {
	d.guard.Check()

	d.mu.Lock()
	buf, ok := d.buffers[h.Index()]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("update buffer: unknown handle %v", h)
	}
	d.queue.WriteBuffer(buf, uint64(offset), data)
	return nil
}

func (d *wgpuDriver) DestroyBuffer(h handle.Handle) {
	d.guard.Check()

	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[h.Index()]; ok {
		buf.Destroy()
		delete(d.buffers, h.Index())
	}
	delete(d.hostMapped, h.Index())
}

func textureFormatToWGPU(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case TextureFormatDepth24Plus:
		return wgpu.TextureFormatDepth24Plus
	case TextureFormatDepth32Float:
		return wgpu.TextureFormatDepth32Float
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func (d *wgpuDriver) CreateTexture(h handle.Handle, width, height, depth uint32, format TextureFormat, flags BufferFlags, initial []byte) error {
	d.guard.Check()

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         fmt.Sprintf("texture-%d", h.Index()),
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: max32(depth, 1)},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        textureFormatToWGPU(format),
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create texture: %w", err)
	}
	if len(initial) > 0 {
		d.queue.WriteTexture(
			&wgpu.ImageCopyTexture{Texture: tex},
			initial,
			&wgpu.TextureDataLayout{BytesPerRow: width * 4, RowsPerImage: height},
			&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		)
	}

	d.mu.Lock()
	d.textures[h.Index()] = tex
	d.mu.Unlock()
	return nil
}

func max32(v, min uint32) uint32 {
	if v < min {
		return min
	}
	return v
}

func (d *wgpuDriver) DestroyTexture(h handle.Handle) {
	d.guard.Check()

	d.mu.Lock()
	defer d.mu.Unlock()
	if tex, ok := d.textures[h.Index()]; ok {
		tex.Destroy()
		delete(d.textures, h.Index())
	}
}

// CreateProgram compiles vertexSrc and fragmentSrc as WGSL shader modules
// and links them into a render pipeline bound against the shared uniform
// layout (binding 0, the global-state buffer). Vertex input is assumed to
// come entirely from shader-generated indices (no vertex buffer layout),
// the minimal shape this driver's capability set supports since it carries
// no mesh/vertex-layout description of its own.
func (d *wgpuDriver) CreateProgram(h handle.Handle, vertexSrc, fragmentSrc string) error {
	d.guard.Check()

	vs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          fmt.Sprintf("program-%d-vs", h.Index()),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: vertexSrc},
	})
	if err != nil {
		return fmt.Errorf("create vertex shader module: %w", err)
	}
	fs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          fmt.Sprintf("program-%d-fs", h.Index()),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: fragmentSrc},
	})
	if err != nil {
		return fmt.Errorf("create fragment shader module: %w", err)
	}

	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("program-%d", h.Index()),
		Layout: d.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{Format: d.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(d.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}

	d.mu.Lock()
	d.programs[h.Index()] = pipeline
	d.mu.Unlock()
	return nil
}

func (d *wgpuDriver) DestroyProgram(h handle.Handle) {
	d.guard.Check()

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.programs[h.Index()]; ok {
		p.Release()
		delete(d.programs, h.Index())
	}
}

func (d *wgpuDriver) CreateFramebuffer(h handle.Handle, width, height int) error {
	d.guard.Check()
	d.Resize(width, height)
	return nil
}

func (d *wgpuDriver) DestroyFramebuffer(h handle.Handle) {
	d.guard.Check()
}

// Map returns the host-side staging slice approximating persistent
// mapping. Writes through the returned slice are not visible to the GPU
// until FlushMappedRange issues the actual upload.
func (d *wgpuDriver) Map(h handle.Handle, offset, size int, flags BufferFlags) ([]byte, error) {
	d.guard.Check()

	d.mu.Lock()
	defer d.mu.Unlock()
	host, ok := d.hostMapped[h.Index()]
	if !ok {
		return nil, fmt.Errorf("map: handle %v was not created with BufferFlagPersistent", h)
	}
	if offset+size > len(host) {
		return nil, fmt.Errorf("map: range [%d,%d) exceeds buffer size %d", offset, offset+size, len(host))
	}
	return host[offset : offset+size], nil
}

// FlushMappedRange uploads the host-side staging slice's contents for
// [offset,offset+size) to the GPU via queue.WriteBuffer, the explicit-flush
// half of the MAP_FLUSH_EXPLICIT contract.
func (d *wgpuDriver) FlushMappedRange(h handle.Handle, offset, size int) {
	d.guard.Check()

	d.mu.Lock()
	buf, bufOK := d.buffers[h.Index()]
	host, hostOK := d.hostMapped[h.Index()]
	d.mu.Unlock()
	if !bufOK || !hostOK || offset+size > len(host) {
		return
	}
	d.queue.WriteBuffer(buf, uint64(offset), host[offset:offset+size])
}

func (d *wgpuDriver) BindUniformBuffer(binding int, h handle.Handle, offset, size int) {
	d.guard.Check()
	d.uniformBinding.handle = h
	d.uniformBinding.offset = offset
	d.uniformBinding.size = size
}

func (d *wgpuDriver) CreateQuery() (handle.Handle, error) {
	d.guard.Check()
	if d.allocators.Query == nil {
		return handle.Invalid, fmt.Errorf("create query: no query allocator configured")
	}
	return d.allocators.Query.Alloc(), nil
}

func (d *wgpuDriver) DestroyQuery(h handle.Handle) {
	d.guard.Check()
	d.mu.Lock()
	delete(d.queryResult, h.Index())
	d.mu.Unlock()
}

func (d *wgpuDriver) ensureFrameEncoder() {
	if d.frameEncoder != nil {
		return
	}
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return
	}
	d.frameEncoder = enc
}

func (d *wgpuDriver) QueryTimestamp(h handle.Handle) {
	d.guard.Check()
	if d.querySet == nil || d.queryNext >= d.queryCap {
		return
	}
	d.ensureFrameEncoder()
	if d.frameEncoder == nil {
		return
	}
	slot := d.queryNext
	d.queryNext++
	d.frameEncoder.WriteTimestamp(d.querySet, slot)
	d.pendingQueries = append(d.pendingQueries, pendingQuery{idx: h.Index(), slot: slot})
}

func (d *wgpuDriver) GetQueryResult(h handle.Handle) (uint64, bool) {
	d.guard.Check()
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.queryResult[h.Index()]
	return v, ok
}

func (d *wgpuDriver) PushDebugGroup(name string) {
	d.guard.Check()
	d.ensureFrameEncoder()
	if d.frameEncoder != nil {
		d.frameEncoder.PushDebugGroup(name)
	}
}

func (d *wgpuDriver) PopDebugGroup() {
	d.guard.Check()
	d.ensureFrameEncoder()
	if d.frameEncoder != nil {
		d.frameEncoder.PopDebugGroup()
	}
}

func (d *wgpuDriver) StartCapture() {
	d.guard.Check()
	d.instance.StartCapture()
}

func (d *wgpuDriver) StopCapture() {
	d.guard.Check()
	d.instance.StopCapture()
}

var _ Driver = (*wgpuDriver)(nil)
