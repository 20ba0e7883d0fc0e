package audio

// FramesPerBuffer is about 23ms at 44.1kHz.
const FramesPerBuffer = 1024
