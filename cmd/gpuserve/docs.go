package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           gpuserve API
// @version         1.0
// @description     HTTP API for single-model GPU inference containers (mesh reconstruction, img2img).
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
