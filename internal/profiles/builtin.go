package profiles

// Built-in vendor table. Adding a vendor is a data change here or in the
// overlay file, never a code change.
var builtin = map[string]Profile{
	"hikvision": {
		Vendor:          "Hikvision",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/Streaming/Channels/{channel}01",
			"rtsp://{auth}{ip}:{port}/Streaming/Channels/{channel}02",
			"rtsp://{auth}{ip}:{port}/h264/ch{channel}/main/av_stream",
			"rtsp://{auth}{ip}:{port}/h264/ch{channel}/sub/av_stream",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/ISAPI/Streaming/channels/{channel}01/httpPreview",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/ISAPI/Streaming/channels/{channel}/picture",
			"http://{ip}:{port}/onvifsnapshot/media_service/snapshot?channel={channel}&subtype=0",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "audio", "alarm_io", "smart_events"},
	},
	"dahua": {
		Vendor:          "Dahua",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/cam/realmonitor?channel={channel}&subtype=0",
			"rtsp://{auth}{ip}:{port}/cam/realmonitor?channel={channel}&subtype=1",
			"rtsp://{auth}{ip}:{port}/live/ch{channel}",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/cgi-bin/mjpg/video.cgi?channel={channel}&subtype=0",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/snapshot.cgi?channel={channel}",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "audio", "alarm_io", "smart_codec"},
	},
	"axis": {
		Vendor:          "Axis",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "root",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/axis-media/media.amp",
			"rtsp://{auth}{ip}:{port}/axis-media/media.amp?videocodec=h264",
			"rtsp://{auth}{ip}:{port}/axis-media/media.amp?resolution=1920x1080",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/axis-cgi/mjpg/video.cgi",
			"http://{ip}:{port}/mjpg/video.mjpg",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/axis-cgi/jpg/image.cgi",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "audio", "analytics", "zipstream"},
	},
	"foscam": {
		Vendor:          "Foscam",
		DefaultPort:     554,
		DefaultHTTPPort: 88,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/videoMain",
			"rtsp://{auth}{ip}:{port}/videoSub",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/cgi-bin/CGIStream.cgi?cmd=GetMJStream&usr={username}&pwd={password}",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/CGIProxy.fcgi?cmd=snapPicture2&usr={username}&pwd={password}",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "audio"},
	},
	"vivotek": {
		Vendor:          "Vivotek",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "root",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/live.sdp",
			"rtsp://{auth}{ip}:{port}/live/ch00_0",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/video.mjpg",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/viewer/snapshot.jpg",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"analytics", "audio"},
	},
	"bosch": {
		Vendor:          "Bosch",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "service",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/rtsp_tunnel",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/snap.jpg",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/snap.jpg?JpegCam={channel}",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"analytics", "intelligent_tracking"},
	},
	"uniview": {
		Vendor:          "Uniview",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/unicast/c{channel}/s0/live",
			"rtsp://{auth}{ip}:{port}/unicast/c{channel}/s1/live",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/snapshot.cgi?channel={channel}",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "smart_ir"},
	},
	"hanwha": {
		Vendor:          "Hanwha",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/profile{stream}/media.smp",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/snapshot.cgi",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"wisenet", "analytics"},
	},
	"reolink": {
		Vendor:          "Reolink",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/h264Preview_01_main",
			"rtsp://{auth}{ip}:{port}/h264Preview_01_sub",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/cgi-bin/api.cgi?cmd=Snap&channel=0&rs=0&user={username}&password={password}",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"ptz", "audio", "person_vehicle_detection"},
	},
	"tplink": {
		Vendor:          "TP-Link",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/stream1",
			"rtsp://{auth}{ip}:{port}/stream2",
		},
		ONVIFSupported: true,
		Capabilities:   []string{"motion_detection", "audio"},
	},
	"xiaomi": {
		Vendor:          "Xiaomi",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/live/ch00_0",
		},
		ONVIFSupported: false,
		Capabilities:   []string{"cloud", "ai_detection"},
	},
	"generic": {
		Vendor:          "Generic",
		DefaultPort:     554,
		DefaultHTTPPort: 80,
		DefaultUsername: "admin",
		StreamTemplates: []string{
			"rtsp://{auth}{ip}:{port}/stream1",
			"rtsp://{auth}{ip}:{port}/stream",
			"rtsp://{auth}{ip}:{port}/live",
			"rtsp://{auth}{ip}:{port}/",
			"rtsp://{auth}{ip}:{port}/h264",
			"rtsp://{auth}{ip}:{port}/video",
		},
		HTTPTemplates: []string{
			"http://{ip}:{port}/video.mjpg",
			"http://{ip}:{port}/mjpg/video.mjpg",
		},
		SnapshotTemplates: []string{
			"http://{ip}:{port}/snapshot.jpg",
			"http://{ip}:{port}/snap.jpg",
			"http://{ip}:{port}/image.jpg",
		},
		ONVIFSupported: true,
	},
}

// OUI prefixes (first 6 hex digits) for camera vendors seen in the field.
var builtinOUI = map[string]string{
	"001D7E": "hikvision",
	"448544": "hikvision",
	"2857BE": "hikvision",
	"C056E3": "hikvision",
	"54C415": "hikvision",
	"4419B6": "hikvision",
	"A4146B": "dahua",
	"C03D46": "dahua",
	"C42F90": "dahua",
	"3CEF8C": "dahua",
	"A0BD1D": "dahua",
	"E0508B": "dahua",
	"9002A9": "dahua",
	"00408C": "axis",
	"ACCC8C": "axis",
	"C4BE84": "foscam",
	"98D6F7": "foscam",
	"000D42": "vivotek",
	"00501E": "vivotek",
	"00626E": "vivotek",
	"0004F2": "bosch",
	"001921": "bosch",
	"001FC6": "tplink",
	"341863": "xiaomi",
}

// Vendors that answer discovery-protocol metadata reliably try ONVIF before
// raw URL guessing; everyone else leads with the stream templates.
var builtinPriority = map[string][]Kind{
	"hikvision": {KindONVIF, KindStream, KindHTTPImage, KindSnapshot},
	"dahua":     {KindONVIF, KindStream, KindHTTPImage, KindSnapshot},
	"axis":      {KindONVIF, KindStream, KindHTTPImage, KindSnapshot},
	"foscam":    {KindStream, KindONVIF, KindHTTPImage, KindSnapshot},
	"generic":   {KindStream, KindONVIF, KindHTTPImage, KindSnapshot},
}

var defaultPriority = []Kind{KindStream, KindONVIF, KindHTTPImage, KindSnapshot}
