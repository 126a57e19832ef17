package hwcamera

import "errors"

// ErrStreamStartRejected is returned by a Device implementation when the
// hardware refuses to start the video stream.
var ErrStreamStartRejected = errors.New("hwcamera: hardware rejected stream start")
