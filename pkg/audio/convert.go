package audio

import "math"

// Float32ToPCM16 converts float32 samples in [-1, 1] to little-endian int16
// PCM. Each sample is scaled by 32767, rounded to nearest, and clamped to the
// int16 range so out-of-range input cannot wrap. The result is always
// len(samples)×2 bytes.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		n := int16(v)
		out[i*2] = byte(n)
		out[i*2+1] = byte(n >> 8)
	}
	return out
}

// PCM16ToFloat32 decodes little-endian int16 PCM into float32 samples scaled
// by 1/32767. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32767.0
	}
	return out
}
