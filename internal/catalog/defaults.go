package catalog

// Default returns the built-in tool set understood by the image service.
func Default() *Catalog {
	return MustNew(
		Tool{ID: "bgremove", Name: "Remove Background", Description: "Remove background with AI", Rule: Fixed("e-bgremove")},
		Tool{ID: "removedotbg", Name: "Remove Background (Pro)", Description: "High-quality background removal", Rule: Fixed("e-removedotbg")},
		Tool{ID: "changebg", Name: "Change Background", Description: "Replace background with AI", RequiresParameter: true,
			Rule: Parameterized("e-changebg", "e-changebg-prompt-{param}")},
		Tool{ID: "edit", Name: "AI Edit", Description: "Edit image with text prompts", RequiresParameter: true,
			Rule: Parameterized("e-edit", "e-edit:{param}")},
		Tool{ID: "genfill", Name: "Generative Fill", Description: "Fill empty areas with AI", RequiresParameter: true,
			Rule: Parameterized("bg-genfill", "bg-genfill:{param}")},
		Tool{ID: "dropshadow", Name: "AI Drop Shadow", Description: "Add realistic shadows", Rule: Fixed("e-dropshadow")},
		Tool{ID: "retouch", Name: "AI Retouch", Description: "Enhance and retouch image", Rule: Fixed("e-retouch")},
		Tool{ID: "upscale", Name: "AI Upscale 2x", Description: "Upscale image quality", Rule: Fixed("e-upscale")},
		Tool{ID: "genvar", Name: "Generate Variations", Description: "Create image variations", RequiresParameter: true,
			Rule: Parameterized("e-genvar", "e-genvar:{param}")},
		Tool{ID: "crop-face", Name: "Face Crop", Description: "Smart face-focused cropping", Rule: Fixed("e-crop-face")},
		Tool{ID: "crop-smart", Name: "Smart Crop", Description: "AI-powered intelligent cropping", Rule: Fixed("e-crop-smart")},
	)
}
