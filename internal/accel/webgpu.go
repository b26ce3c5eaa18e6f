//go:build gpu

package accel

import (
	"fmt"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

const workgroupSize = 64

type gpuContext struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string

	once    sync.Once
	initErr error
}

var shared gpuContext

// Open returns the process-wide WebGPU device, initializing it on first use.
func Open() (Device, error) {
	shared.once.Do(shared.init)
	if shared.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, shared.initErr)
	}
	return &webGPU{ctx: &shared, pipelines: make(map[[2]int]*wgpu.ComputePipeline)}, nil
}

func (c *gpuContext) init() {
	c.instance = wgpu.CreateInstance(nil)
	if c.instance == nil {
		c.initErr = fmt.Errorf("failed to create WebGPU instance")
		return
	}

	var err error
	attempts := []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	}
	for _, opts := range attempts {
		c.adapter, err = c.instance.RequestAdapter(opts)
		if err == nil && c.adapter != nil {
			break
		}
	}
	if c.adapter == nil {
		c.initErr = fmt.Errorf("all adapter attempts failed: %v", err)
		return
	}
	c.name = c.adapter.GetInfo().Name

	c.device, err = c.adapter.RequestDevice(nil)
	if err != nil || c.device == nil {
		c.initErr = fmt.Errorf("request device: %v", err)
		return
	}
	c.queue = c.device.GetQueue()
}

type webGPU struct {
	ctx *gpuContext

	mu        sync.Mutex
	pipelines map[[2]int]*wgpu.ComputePipeline
}

func (g *webGPU) Name() string { return "webgpu:" + g.ctx.name }

func (g *webGPU) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, p := range g.pipelines {
		p.Release()
		delete(g.pipelines, k)
	}
}

// pipeline compiles (once per input/hidden size) the GRU step shader.
func (g *webGPU) pipeline(inputSize, hiddenSize int) (*wgpu.ComputePipeline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := [2]int{inputSize, hiddenSize}
	if p, ok := g.pipelines[key]; ok {
		return p, nil
	}

	label := fmt.Sprintf("GRUStep_%dx%d", inputSize, hiddenSize)
	mod, err := g.ctx.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: gruStepShader(inputSize, hiddenSize)},
	})
	if err != nil {
		return nil, err
	}
	p, err := g.ctx.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, err
	}
	g.pipelines[key] = p
	return p, nil
}

func (g *webGPU) Bind(w *GRUWeights, batch int) (Kernel, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if batch <= 0 {
		return nil, fmt.Errorf("batch must be positive, got %d", batch)
	}

	p, err := g.pipeline(w.InputSize, w.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("compile gru step: %w", err)
	}

	k := &gruKernel{ctx: g.ctx, pipeline: p, batch: batch, inputSize: w.InputSize, hiddenSize: w.HiddenSize}
	if err := k.allocate(w); err != nil {
		k.Release()
		return nil, err
	}
	return k, nil
}

type gruKernel struct {
	ctx       *gpuContext
	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	batch      int
	inputSize  int
	hiddenSize int

	inputBuffer   *wgpu.Buffer
	hiddenBuffer  *wgpu.Buffer
	outputBuffer  *wgpu.Buffer
	stagingBuffer *wgpu.Buffer
	weightBuffers []*wgpu.Buffer
}

func (k *gruKernel) allocate(w *GRUWeights) error {
	dev := k.ctx.device
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst

	for _, data := range [][]float32{w.WeightIH, w.WeightHH, w.BiasIH, w.BiasHH} {
		buf, err := dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Contents: wgpu.ToBytes(data),
			Usage:    storage,
		})
		if err != nil {
			return fmt.Errorf("failed to create weight buffer: %v", err)
		}
		k.weightBuffers = append(k.weightBuffers, buf)
	}

	var err error
	k.inputBuffer, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GRU_In",
		Size:  uint64(k.batch * k.inputSize * 4),
		Usage: storage,
	})
	if err != nil {
		return err
	}
	hiddenBytes := uint64(k.batch * k.hiddenSize * 4)
	k.hiddenBuffer, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GRU_Hidden",
		Size:  hiddenBytes,
		Usage: storage,
	})
	if err != nil {
		return err
	}
	k.outputBuffer, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GRU_Out",
		Size:  hiddenBytes,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return err
	}
	k.stagingBuffer, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GRU_Staging",
		Size:  hiddenBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}

	k.bindGroup, err = dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "GRU_Bind",
		Layout: k.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: k.inputBuffer, Size: k.inputBuffer.GetSize()},
			{Binding: 1, Buffer: k.hiddenBuffer, Size: k.hiddenBuffer.GetSize()},
			{Binding: 2, Buffer: k.weightBuffers[0], Size: k.weightBuffers[0].GetSize()},
			{Binding: 3, Buffer: k.weightBuffers[1], Size: k.weightBuffers[1].GetSize()},
			{Binding: 4, Buffer: k.weightBuffers[2], Size: k.weightBuffers[2].GetSize()},
			{Binding: 5, Buffer: k.weightBuffers[3], Size: k.weightBuffers[3].GetSize()},
			{Binding: 6, Buffer: k.outputBuffer, Size: k.outputBuffer.GetSize()},
		},
	})
	return err
}

func (k *gruKernel) Step(x, h []float32) ([]float32, error) {
	if len(x) != k.batch*k.inputSize || len(h) != k.batch*k.hiddenSize {
		return nil, fmt.Errorf("gru step: got x=%d h=%d values, want %d and %d",
			len(x), len(h), k.batch*k.inputSize, k.batch*k.hiddenSize)
	}

	c := k.ctx
	c.queue.WriteBuffer(k.inputBuffer, 0, wgpu.ToBytes(x))
	c.queue.WriteBuffer(k.hiddenBuffer, 0, wgpu.ToBytes(h))

	enc, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %v", err)
	}
	total := k.batch * k.hiddenSize
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, k.bindGroup, nil)
	pass.DispatchWorkgroups(uint32((total+workgroupSize-1)/workgroupSize), 1, 1)
	pass.End()

	size := k.outputBuffer.GetSize()
	enc.CopyBufferToBuffer(k.outputBuffer, 0, k.stagingBuffer, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish command: %v", err)
	}
	c.queue.Submit(cmd)

	return k.readStaging(total)
}

func (k *gruKernel) readStaging(n int) ([]float32, error) {
	size := uint64(n * 4)
	done := make(chan struct{})
	var mapErr error
	err := k.stagingBuffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("MapAsync failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
Loop:
	for {
		k.ctx.device.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-timeout:
			return nil, fmt.Errorf("gru step readback timed out after 2s")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := k.stagingBuffer.GetMappedRange(0, uint(size))
	if data == nil {
		return nil, fmt.Errorf("failed to get mapped range")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data))
	k.stagingBuffer.Unmap()
	return out, nil
}

func (k *gruKernel) Release() {
	bufs := append([]*wgpu.Buffer{k.inputBuffer, k.hiddenBuffer, k.outputBuffer, k.stagingBuffer}, k.weightBuffers...)
	for _, b := range bufs {
		if b != nil {
			b.Destroy()
		}
	}
	if k.bindGroup != nil {
		k.bindGroup.Release()
		k.bindGroup = nil
	}
}

// gruStepShader generates one GRU step; one invocation per (batch, hidden) cell.
func gruStepShader(inputSize, hiddenSize int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> x : array<f32>;
		@group(0) @binding(1) var<storage, read> h_prev : array<f32>;
		@group(0) @binding(2) var<storage, read> w_ih : array<f32>;
		@group(0) @binding(3) var<storage, read> w_hh : array<f32>;
		@group(0) @binding(4) var<storage, read> b_ih : array<f32>;
		@group(0) @binding(5) var<storage, read> b_hh : array<f32>;
		@group(0) @binding(6) var<storage, read_write> h_next : array<f32>;

		const INPUT_SIZE: u32 = %du;
		const HIDDEN_SIZE: u32 = %du;

		fn sigmoid(v: f32) -> f32 {
			return 1.0 / (1.0 + exp(-v));
		}

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= arrayLength(&h_next)) { return; }

			let b = idx / HIDDEN_SIZE;
			let j = idx %% HIDDEN_SIZE;
			let rz = HIDDEN_SIZE + j;
			let rn = 2u * HIDDEN_SIZE + j;

			var gi_r: f32 = b_ih[j];
			var gi_z: f32 = b_ih[rz];
			var gi_n: f32 = b_ih[rn];
			for (var i: u32 = 0u; i < INPUT_SIZE; i++) {
				let xv = x[b * INPUT_SIZE + i];
				gi_r += w_ih[j * INPUT_SIZE + i] * xv;
				gi_z += w_ih[rz * INPUT_SIZE + i] * xv;
				gi_n += w_ih[rn * INPUT_SIZE + i] * xv;
			}

			var gh_r: f32 = b_hh[j];
			var gh_z: f32 = b_hh[rz];
			var gh_n: f32 = b_hh[rn];
			for (var i: u32 = 0u; i < HIDDEN_SIZE; i++) {
				let hv = h_prev[b * HIDDEN_SIZE + i];
				gh_r += w_hh[j * HIDDEN_SIZE + i] * hv;
				gh_z += w_hh[rz * HIDDEN_SIZE + i] * hv;
				gh_n += w_hh[rn * HIDDEN_SIZE + i] * hv;
			}

			let r = sigmoid(gi_r + gh_r);
			let z = sigmoid(gi_z + gh_z);
			let n = tanh(gi_n + r * gh_n);
			h_next[idx] = (1.0 - z) * n + z * h_prev[b * HIDDEN_SIZE + j];
		}
	`, inputSize, hiddenSize, workgroupSize)
}
