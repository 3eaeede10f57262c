package shader

// ────────────────────────────────── Desktop GL ──────────────────────────────────

// The sprite quad is the unit quad in [-1,1]². u_rect is the sprite's
// top-left corner and size in output pixels, u_viewport the output size.
const spriteVertexShaderSourceGL = `#version 410 core
layout (location = 0) in vec2 in_vert;
uniform vec4 u_rect;
uniform vec2 u_viewport;
void main() {
    vec2 uv = in_vert * 0.5 + 0.5;
    vec2 px = u_rect.xy + vec2(uv.x, 1.0 - uv.y) * u_rect.zw;
    gl_Position = vec4(px.x / u_viewport.x * 2.0 - 1.0, 1.0 - px.y / u_viewport.y * 2.0, 0.0, 1.0);
}
`

// ──────────────────────────────────── GLES ──────────────────────────────────────

const spriteVertexShaderSourceGLES = `#version 300 es
layout (location = 0) in vec2 in_vert;
uniform vec4 u_rect;
uniform vec2 u_viewport;
void main() {
    vec2 uv = in_vert * 0.5 + 0.5;
    vec2 px = u_rect.xy + vec2(uv.x, 1.0 - uv.y) * u_rect.zw;
    gl_Position = vec4(px.x / u_viewport.x * 2.0 - 1.0, 1.0 - px.y / u_viewport.y * 2.0, 0.0, 1.0);
}
`

// ──────────────────────────────────── WebGL2 ────────────────────────────────────

// The sprite fragment shader is written once as WebGL2 and translated for the
// running context. Texture coordinates are derived from gl_FragCoord so no
// varyings have to survive the translator's renaming. The texture holds
// premultiplied alpha and is sampled as is.
const spriteFragmentShaderSourceWebGL2 = `#version 300 es
precision highp float;

uniform sampler2D u_image;
uniform vec4 u_rect;
uniform vec2 u_viewport;
uniform vec2 u_framebuffer;

out vec4 fragColor;

void main() {
    vec2 px = vec2(gl_FragCoord.x, u_framebuffer.y - gl_FragCoord.y) * (u_viewport / u_framebuffer);
    vec2 uv = (px - u_rect.xy) / u_rect.zw;
    fragColor = texture(u_image, clamp(uv, 0.0, 1.0));
}
`

// ────────────────────────────────── Public API ─────────────────────────────────

// SpriteUniforms lists the uniforms of the sprite fragment shader.
var SpriteUniforms = []string{"u_image", "u_rect", "u_viewport", "u_framebuffer"}

func GenerateVertexShader(isGLES bool) string {
	if isGLES {
		return spriteVertexShaderSourceGLES
	}
	return spriteVertexShaderSourceGL
}

// GetSpriteFragmentShader returns the WebGL2 source of the sprite shader.
func GetSpriteFragmentShader() string {
	return spriteFragmentShaderSourceWebGL2
}
